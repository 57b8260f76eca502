package show

import (
	"strconv"
	"strings"
)

// Quality is an ordered encoding of resolution/source used to rank releases.
// Higher values are better.
type Quality int

const (
	QualityUnknown      Quality = 0
	QualitySDTV         Quality = 1
	QualitySDDVD        Quality = 2
	QualityHDTV         Quality = 4
	QualityRawHDTV      Quality = 8
	QualityFullHDTV     Quality = 16
	QualityHDWebDL      Quality = 32
	QualityFullHDWebDL  Quality = 64
	QualityHDBluRay     Quality = 128
	QualityFullHDBluRay Quality = 256
	QualityUHD          Quality = 512
)

var qualityNames = map[Quality]string{
	QualityUnknown:      "Unknown",
	QualitySDTV:         "SDTV",
	QualitySDDVD:        "SD DVD",
	QualityHDTV:         "720p HDTV",
	QualityRawHDTV:      "RawHD TV",
	QualityFullHDTV:     "1080p HDTV",
	QualityHDWebDL:      "720p WEB-DL",
	QualityFullHDWebDL:  "1080p WEB-DL",
	QualityHDBluRay:     "720p BluRay",
	QualityFullHDBluRay: "1080p BluRay",
	QualityUHD:          "2160p",
}

// String returns the human-readable quality name.
func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return "Unknown"
}

// QualitySet is an allowed/preferred quality collection.
type QualitySet []Quality

// Contains reports whether q is a member of the set.
func (s QualitySet) Contains(q Quality) bool {
	for _, member := range s {
		if member == q {
			return true
		}
	}
	return false
}

// Encode serializes the set in the delimited |q1|q2| form used in the database.
func (s QualitySet) Encode() string {
	if len(s) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('|')
	for _, q := range s {
		b.WriteString(strconv.Itoa(int(q)))
		b.WriteByte('|')
	}
	return b.String()
}

// DecodeQualitySet parses the delimited |q1|q2| form.
func DecodeQualitySet(encoded string) QualitySet {
	var set QualitySet
	for _, part := range strings.Split(encoded, "|") {
		if part == "" {
			continue
		}
		if v, err := strconv.Atoi(part); err == nil {
			set = append(set, Quality(v))
		}
	}
	return set
}
