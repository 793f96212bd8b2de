package proto

// BatchReport is the payload of the relay's outer signed wrapper: one tick's
// worth of verified events plus the elapsed time they cover. Reports are
// produced once, consumed once per peer, and never re-served.
type BatchReport struct {
	Ver         int             `json:"ver,omitempty"`
	Frame       uint64          `json:"frame"`
	DeltaTiming uint64          `json:"deltaTiming"`
	DeltaEvents []SignedWrapper `json:"deltaEvents"`
}

// DecodeReport parses a wrapper payload into a BatchReport. A missing or
// zero deltaTiming classifies as ErrMalformedReport; a null event list
// normalizes to empty.
func DecodeReport(payload []byte) (BatchReport, error) {
	var report BatchReport
	if err := codec.Unmarshal(payload, &report); err != nil {
		return BatchReport{}, ErrMalformedReport
	}
	if report.DeltaTiming == 0 {
		return BatchReport{}, ErrMalformedReport
	}
	if report.DeltaEvents == nil {
		report.DeltaEvents = []SignedWrapper{}
	}
	return report, nil
}
