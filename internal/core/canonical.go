package core

import (
	"strings"
	"unicode/utf8"
)

// carrierAliases is checked in order; the first substring hit names the carrier.
var carrierAliases = []struct {
	contains []string
	name     string
}{
	{[]string{"HAPAG"}, "HAPAG-LLOYD"},
	{[]string{"CMA"}, "CMA CGM"},
	{[]string{"ONE"}, "ONE"},
	{[]string{"MSC"}, "MSC"},
	{[]string{"HYUNDAI", "HMM"}, "HMM"},
	{[]string{"MAERSK"}, "MAERSK"},
	{[]string{"COSCO"}, "COSCO"},
	{[]string{"EVERGREEN"}, "EVERGREEN"},
}

// minTrackingLength is exclusive: admitted numbers are longer than this.
const minTrackingLength = 5

// unknownTrackingNumber is the sentinel some manifests use for a missing number.
const unknownTrackingNumber = "UNKNOWN"

// CanonicalCarrier upper-cases raw and maps it onto the known carrier names.
// Unmatched names are returned upper-cased; blank input yields UnknownCarrier.
func CanonicalCarrier(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" || s == strings.ToUpper(UnknownCarrier) {
		return UnknownCarrier
	}
	for _, alias := range carrierAliases {
		for _, sub := range alias.contains {
			if strings.Contains(s, sub) {
				return alias.name
			}
		}
	}
	return s
}

// ClassifyMode guesses the transport mode of a tracking number. Air waybills
// are hyphenated (098-12345678) or 11 bare digits; everything else is sea.
func ClassifyMode(number string) TransportMode {
	if strings.Contains(number, "-") {
		return ModeAir
	}
	if len(number) == 11 && isDigits(number) {
		return ModeAir
	}
	return ModeSea
}

// AdmitTrackingNumber reports whether a trimmed number is usable.
func AdmitTrackingNumber(number string) bool {
	return utf8.RuneCountInString(number) > minTrackingLength && number != unknownTrackingNumber
}

// Canonicalize builds a record from a normalized row. It returns false for
// rows without a usable tracking number. The record has no id yet.
func Canonicalize(n NormalizedRow, raw RawRow) (ShipmentRecord, bool) {
	number := strings.TrimSpace(n.Get(FieldTrackingNumber))
	if !AdmitTrackingNumber(number) {
		return ShipmentRecord{}, false
	}

	eta := strings.TrimSpace(n.Get(FieldSystemETA))
	if eta == "" {
		eta = NotAvailable
	}

	return ShipmentRecord{
		TrackingNumber: number,
		Carrier:        CanonicalCarrier(n.Get(FieldCarrier)),
		SystemETA:      eta,
		Mode:           ClassifyMode(number),
		State:          StatePending,
		Selected:       true,
		Raw:            raw.Clone(),
	}, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
