package device

import "portacount.dev/protocol"

// propertiesAggregator accumulates the four DeviceProperties fields from
// a stream of Setting messages and reports the completed value exactly
// once, per spec.md §4.6.
type propertiesAggregator struct {
	serial *string
	hours  *float64
	month  *int
	year   *int

	published bool
}

func (p *propertiesAggregator) feed(s protocol.SettingMessage) (DeviceProperties, bool) {
	switch s.Kind {
	case protocol.SerialNumber:
		v := s.Text
		p.serial = &v
	case protocol.RunTimeSinceService:
		v := float64(s.Decaminutes) * 10.0 / 60.0
		p.hours = &v
	case protocol.DateLastServiced:
		year := s.Year
		if year < 80 {
			year += 2000
		} else {
			year += 1900
		}
		month := s.Month
		p.month = &month
		p.year = &year
	}

	if p.published || p.serial == nil || p.hours == nil || p.month == nil || p.year == nil {
		return DeviceProperties{}, false
	}
	p.published = true
	return DeviceProperties{
		SerialNumber:                 *p.serial,
		RunTimeSinceLastServiceHours: *p.hours,
		LastServiceMonth:             *p.month,
		LastServiceYear:              *p.year,
	}, true
}
