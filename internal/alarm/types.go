package alarm

import "strconv"

// Type identifies an alarm. Names match what the ingestion backend already
// indexes, so they are kept verbatim.
type Type int

const (
	UserConfigAlarm Type = iota
	GlobalConfigAlarm
	SendQuotaExceedAlarm
	DiscardDataAlarm
	ConfigUpdateAlarm
	SendDataFailAlarm
	ParseTimeFailAlarm
	OutdatedLogAlarm
	ProcessQueueBusyAlarm
	SendingCostsTooMuchTimeAlarm
	CompressFailAlarm
	SerializeFailAlarm
	HostMonitorCollectFailAlarm
	SpoolWriteFailAlarm
)

var typeNames = [...]string{
	UserConfigAlarm:              "USER_CONFIG_ALARM",
	GlobalConfigAlarm:            "GLOBAL_CONFIG_ALARM",
	SendQuotaExceedAlarm:         "SEND_QUOTA_EXCEED_ALARM",
	DiscardDataAlarm:             "DISCARD_DATA_ALARM",
	ConfigUpdateAlarm:            "CONFIG_UPDATE_ALARM",
	SendDataFailAlarm:            "SEND_DATA_FAIL_ALARM",
	ParseTimeFailAlarm:           "PARSE_TIME_FAIL_ALARM",
	OutdatedLogAlarm:             "OUTDATED_LOG_ALARM",
	ProcessQueueBusyAlarm:        "PROCESS_QUEUE_BUSY_ALARM",
	SendingCostsTooMuchTimeAlarm: "SENDING_COSTS_TOO_MUCH_TIME_ALARM",
	CompressFailAlarm:            "COMPRESS_FAIL_ALARM",
	SerializeFailAlarm:           "SERIALIZE_FAIL_ALARM",
	HostMonitorCollectFailAlarm:  "HOST_MONITOR_COLLECT_FAIL_ALARM",
	SpoolWriteFailAlarm:          "SPOOL_WRITE_FAIL_ALARM",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "ALARM_" + strconv.Itoa(int(t))
}
