package models

// RoomSettings controls quiz length and the per-question countdown.
type RoomSettings struct {
	Questions int `json:"questions"`
	Timer     int `json:"timer"`
}

// DefaultRoomSettings returns the settings applied when room creation omits
// them: a 10-question quiz with 20 seconds per question.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{Questions: 10, Timer: 20}
}

// SettingsPatch is a partial settings update; nil fields keep their previous
// value (shallow merge).
type SettingsPatch struct {
	Questions *int `json:"questions,omitempty"`
	Timer     *int `json:"timer,omitempty"`
}

// Merge applies the patch onto s. Non-positive values are ignored the same
// way nil fields are; the timer in particular divides the score bonus, so a
// zero or negative value must never land in settings.
func (s *RoomSettings) Merge(p SettingsPatch) {
	if p.Questions != nil && *p.Questions > 0 {
		s.Questions = *p.Questions
	}
	if p.Timer != nil && *p.Timer > 0 {
		s.Timer = *p.Timer
	}
}
