package config

import "encoding/xml"

// xml* types mirror the XML schema from spec.md §6. Validation against
// the actual XSD is delegated to SchemaValidator; these structs only
// need to parse what encoding/xml can unambiguously decode.

type xmlWeekSchedule struct {
	XMLName xml.Name `xml:"WeekSchedule"`
	Sun     *xmlDay  `xml:"Sun"`
	Mon     *xmlDay  `xml:"Mon"`
	Tue     *xmlDay  `xml:"Tue"`
	Wed     *xmlDay  `xml:"Wed"`
	Thu     *xmlDay  `xml:"Thu"`
	Fri     *xmlDay  `xml:"Fri"`
	Sat     *xmlDay  `xml:"Sat"`
}

type xmlDay struct {
	Zones []*xmlZone `xml:"Zone"`
}

type xmlZone struct {
	Name          string             `xml:"Name,attr"`
	Start         string             `xml:"Start,attr"`
	Maintainer    string             `xml:"Maintainer"`
	Description   string             `xml:"Description"`
	Comment       string             `xml:"Comment"`
	Main          *xmlPlaylist       `xml:"Main"`
	Fallback      *xmlPlaylist       `xml:"Fallback"`
	Intermediates []*xmlIntermediate `xml:"Intermediate"`
}

type xmlFader struct {
	FadeInDurationSecs  float64 `xml:"FadeInDurationSecs,attr"`
	FadeOutDurationSecs float64 `xml:"FadeOutDurationSecs,attr"`
	MinLevel            float64 `xml:"MinLevel,attr"`
	MaxLevel            float64 `xml:"MaxLevel,attr"`
}

type xmlPlaylist struct {
	Path    string    `xml:"Path,attr"`
	Shuffle string    `xml:"Shuffle,attr"`
	Fader   *xmlFader `xml:"Fader"`
}

type xmlIntermediate struct {
	xmlPlaylist
	Name              string `xml:"Name,attr"`
	SchedIntervalMins int    `xml:"SchedIntervalMins,attr"`
	NumSchedItems     int    `xml:"NumSchedItems,attr"`
}
