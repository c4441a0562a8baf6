package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic bases. The main game and the kiosk flow share one broker but live
// under separate prefixes.
const (
	BaseMarathon   = "marathon"
	BaseMarathonFM = "MarathonFM"
)

// Fixed request/response topics shared by every station. Responses are
// suffixed with the requesting station id when one is present in the
// request payload; see ResponseTopic.
const (
	TopicScoreSubmit           = "leaderboard/submit"
	TopicScoreSubmitResponse   = "leaderboard/submit/response"
	TopicCheckUsername         = "leaderboard/check-username"
	TopicCheckUsernameResponse = "leaderboard/check-username/response"
	TopicTop10Request          = "leaderboard/top10/request"
	TopicTop10Response         = "leaderboard/top10/response"
	TopicConfigRequest         = "marathon/config/request"
	TopicConfigBroadcast       = "marathon/config/broadcast"
	TopicLeaderboardBroadcast  = "leaderboard/broadcast"
	TopicSystemStatus          = "marathon/system/status"
	TopicDiscovery             = "marathon/discovery"
)

// Kiosk ("FM") flow topics. The kiosk leaderboard is flat: no per-mode
// partitioning and no station suffixes, only a left and a right terminal.
const (
	TopicKioskWrite = "MarathonFM/leaderboard/write"
	TopicKioskTop10 = "MarathonFM/leaderboard/top10"
)

// KioskSide names one of the two kiosk registration terminals.
type KioskSide string

const (
	KioskLeft  KioskSide = "left"
	KioskRight KioskSide = "right"
)

// KioskSides lists both terminals in a stable order.
var KioskSides = []KioskSide{KioskLeft, KioskRight}

// KioskCheckNameTopic is the username check request inbox for one terminal.
func KioskCheckNameTopic(side KioskSide) string {
	return fmt.Sprintf("%s/leaderboard/%s/checkname", BaseMarathonFM, side)
}

// KioskCheckNameResponseTopic is where the matching response is published.
func KioskCheckNameResponseTopic(side KioskSide) string {
	return KioskCheckNameTopic(side) + "/response"
}

// StationChannel names one of the per-station channel families.
type StationChannel string

const (
	ChannelTabletCommand StationChannel = "tablet/command"
	ChannelGameData      StationChannel = "game/data"
	ChannelGameState     StationChannel = "game/state"
	ChannelMachineData   StationChannel = "machine/data"
)

// TabletCommandTopic carries tablet→game commands for one station.
func TabletCommandTopic(base string, stationID int) string {
	return stationTopic(base, stationID, ChannelTabletCommand)
}

// GameDataTopic carries the live game→tablet progress feed for one station.
func GameDataTopic(base string, stationID int) string {
	return stationTopic(base, stationID, ChannelGameData)
}

// GameStateTopic carries game state transitions for one station.
func GameStateTopic(base string, stationID int) string {
	return stationTopic(base, stationID, ChannelGameState)
}

// MachineDataTopic carries the machine→game sensor feed for one station.
func MachineDataTopic(base string, stationID int) string {
	return stationTopic(base, stationID, ChannelMachineData)
}

// StationConfigTopic is the point-to-point config re-delivery topic for one
// station, used to answer ConfigRequest.
func StationConfigTopic(stationID int) string {
	return fmt.Sprintf("%s/station%d/config", BaseMarathon, stationID)
}

// ModeBroadcastTopic is the per-mode leaderboard broadcast feed.
func ModeBroadcastTopic(mode string) string {
	return TopicLeaderboardBroadcast + "/" + mode
}

// ResponseTopic derives the response topic for a request. With a station id
// the response goes to the station-suffixed topic so many stations can share
// one request inbox without cross-talk; without one it falls back to the
// unsuffixed base, which every listener receives.
func ResponseTopic(base string, stationID *int) string {
	if stationID == nil {
		return base
	}
	return fmt.Sprintf("%s/%d", base, *stationID)
}

func stationTopic(base string, stationID int, channel StationChannel) string {
	return fmt.Sprintf("%s/station%d/%s", base, stationID, channel)
}

// ParseStationTopic splits a station-scoped topic back into its parts. The
// station id is only ever inferred from topic structure, never from payload
// content. ok is false for any topic outside the four station families.
func ParseStationTopic(topic string) (base string, stationID int, channel StationChannel, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return "", 0, "", false
	}

	station, found := strings.CutPrefix(parts[1], "station")
	if !found {
		return "", 0, "", false
	}
	id, err := strconv.Atoi(station)
	if err != nil || id < 0 {
		return "", 0, "", false
	}

	ch := StationChannel(parts[2] + "/" + parts[3])
	switch ch {
	case ChannelTabletCommand, ChannelGameData, ChannelGameState, ChannelMachineData:
		return parts[0], id, ch, true
	}
	return "", 0, "", false
}
