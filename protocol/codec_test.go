package protocol

import "testing"

func TestEncodeTable(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		want string
		err  bool
	}{
		{"beep-min", NewBeep(1), "B01", false},
		{"beep-max", NewBeep(60), "B60", false},
		{"beep-over", NewBeep(61), "", true},
		{"exercise-max", NewDisplayExercise(19), "N19", false},
		{"exercise-over", NewDisplayExercise(20), "", true},
		{"conc-zero", NewDisplayConcentration(0.0), "D000000.00", false},
		{"conc-small", NewDisplayConcentration(99.9), "D000099.90", false},
		{"conc-round", NewDisplayConcentration(100.5), "D000000101", false},
		{"conc-over", NewDisplayConcentration(1_000_000_000.0), "", true},
		{"indicator-empty", NewIndicator(Indicator{}), "I00000000", false},
		{"indicator-some", NewIndicator(Indicator{InProgress: true, Pass: true}), "I01000001", false},
		{"clear", Command{Kind: ClearDisplay}, "K", false},
		{"request-settings", Command{Kind: RequestSettings}, "S", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := c.cmd.Encode()
			if c.err {
				if err == nil {
					t.Fatalf("Encode() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if got != c.want {
				t.Errorf("Encode() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestParseTable(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Message
		err  bool
	}{
		{"sample", "000001.00", Message{Kind: Sample, Value: 1.0}, false},
		{"sample-trailing-dot", "99999999.", Message{Kind: Sample, Value: 99999999.0}, false},
		{"enter-echo", "OK", Message{Kind: Response, Command: Command{Kind: EnterExternalControl}}, false},
		{"valve-vo", "VO", Message{Kind: Response, Command: Command{Kind: ValveSpecimen}}, false},
		{"valve-vf", "VF", Message{Kind: Response, Command: Command{Kind: ValveSpecimen}}, false},
		{"beep-echo", "B11", Message{Kind: Response, Command: NewBeep(11)}, false},
		{"exercise-echo-permissive", "N100", Message{Kind: Response, Command: NewDisplayExercise(100)}, false},
		{"indicator-echo", "I01000011", Message{Kind: Response, Command: NewIndicator(Indicator{
			InProgress: true, Fail: true, Pass: true,
		})}, false},
		{"ambient-purge", "STPA 00004", Message{Kind: Setting, Setting: SettingMessage{Kind: AmbientPurgeTime, Seconds: 4}}, false},
		{"mask-sample-time", "STM0100010", Message{Kind: Setting, Setting: SettingMessage{Kind: MaskSampleTime, Exercise: 1, Seconds: 10}}, false},
		{"pass-level", "SP 1264000", Message{Kind: Setting, Setting: SettingMessage{Kind: FitFactorPassLevel, Exercise: 12, FitFactor: 64000}}, false},
		{"date", "SD   01224", Message{Kind: Setting, Setting: SettingMessage{Kind: DateLastServiced, Month: 12, Year: 24}}, false},
		{"date-invalid", "SD   99999", Message{}, true},
		{"empty", "", Message{}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Parse(c.line)
			if c.err {
				if err == nil {
					t.Fatalf("Parse(%q) = %+v, want error", c.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", c.line, err)
			}
			if got != c.want {
				t.Errorf("Parse(%q) = %+v, want %+v", c.line, got, c.want)
			}
		})
	}
}

// TestCommandRoundTrip covers spec.md §8 property 1: every encodable
// command parses back to Response(c), up to the VO/VF synonym.
func TestCommandRoundTrip(t *testing.T) {
	commands := []Command{
		{Kind: EnterExternalControl},
		{Kind: ExitExternalControl},
		NewBeep(1),
		NewBeep(60),
		{Kind: ValveAmbient},
		{Kind: ValveSpecimen},
		NewDisplayExercise(0),
		NewDisplayExercise(19),
		NewDisplayConcentration(0),
		NewDisplayConcentration(99.9),
		NewDisplayConcentration(12345),
		NewIndicator(Indicator{InProgress: true, FitFactor: true, Service: true, LowParticle: true, LowBattery: true, Fail: true, Pass: true}),
		{Kind: ClearDisplay},
		{Kind: RequestSettings},
	}
	for _, c := range commands {
		wire, err := c.Encode()
		if err != nil {
			t.Fatalf("Encode(%+v) error = %v", c, err)
		}
		msg, err := Parse(wire)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", wire, err)
		}
		if msg.Kind != Response {
			t.Fatalf("Parse(%q).Kind = %v, want Response", wire, msg.Kind)
		}
		if msg.Command != c {
			t.Errorf("round-trip %+v -> %q -> %+v", c, wire, msg.Command)
		}
	}
}

// TestParseTrimIdempotence covers spec.md §8 property 2.
func TestParseTrimIdempotence(t *testing.T) {
	lines := []string{"000001.00", "OK", "VF", "B11", "I01000011", "STPA 00004"}
	for _, line := range lines {
		base, err := Parse(line)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", line, err)
		}
		for _, padded := range []string{line + "\r", line + "\n", line + "\r\n"} {
			got, err := Parse(padded)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", padded, err)
			}
			if got != base {
				t.Errorf("Parse(%q) = %+v, want %+v (same as unpadded)", padded, got, base)
			}
		}
	}
}

func TestParseErrorEquality(t *testing.T) {
	_, err1 := Parse("")
	_, err2 := Parse("")
	pe1, ok1 := err1.(*ParseError)
	pe2, ok2 := err2.(*ParseError)
	if !ok1 || !ok2 {
		t.Fatalf("expected *ParseError, got %T, %T", err1, err2)
	}
	if !pe1.Equal(pe2) {
		t.Errorf("ParseErrors for the same line should compare equal")
	}
}
