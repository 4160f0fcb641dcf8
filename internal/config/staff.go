package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/copacabanabeauty/salon-booking/internal/booking"
)

// StaffFile is the YAML roster format:
//
//	staff:
//	  - key: ana
//	    name: Ana Paula
//	    calendar_env: CALENDAR_ID_ANA
//	  - key: carla
//	    name: Carla Souza
//	    calendar_id: carla@group.calendar.google.com
type StaffFile struct {
	Staff []StaffEntry `yaml:"staff"`
}

// StaffEntry is one stylist. calendar_id wins over calendar_env.
type StaffEntry struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	CalendarID  string `yaml:"calendar_id"`
	CalendarEnv string `yaml:"calendar_env"`
}

// Roster builds the staff roster, from StaffConfigFile when set and from the
// CALENDAR_ID_* settings otherwise.
func (c *Config) Roster() (*booking.Roster, error) {
	if strings.TrimSpace(c.StaffConfigFile) == "" {
		return booking.NewRoster(
			booking.StaffMember{Key: "ana", DisplayName: "Ana Paula", CalendarID: c.CalendarIDAna, CalendarSource: "CALENDAR_ID_ANA"},
			booking.StaffMember{Key: "glenda", DisplayName: "Glenda Garcia", CalendarID: c.CalendarIDGlenda, CalendarSource: "CALENDAR_ID_GLENDA"},
		), nil
	}
	return LoadRoster(c.StaffConfigFile)
}

// LoadRoster reads a YAML roster. ${VAR} placeholders are expanded.
func LoadRoster(path string) (*booking.Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read staff file: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var file StaffFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse staff file: %w", err)
	}
	if len(file.Staff) == 0 {
		return nil, fmt.Errorf("config: staff file %s lists no staff", path)
	}

	members := make([]booking.StaffMember, 0, len(file.Staff))
	for i, e := range file.Staff {
		key := strings.ToLower(strings.TrimSpace(e.Key))
		if key == "" {
			return nil, fmt.Errorf("config: staff entry %d has no key", i)
		}
		if key == booking.DuoKey {
			return nil, fmt.Errorf("config: staff key %q is reserved", booking.DuoKey)
		}

		m := booking.StaffMember{
			Key:            key,
			DisplayName:    strings.TrimSpace(e.Name),
			CalendarID:     strings.TrimSpace(e.CalendarID),
			CalendarSource: "STAFF_CONFIG_FILE staff[" + key + "].calendar_id",
		}
		if m.CalendarID == "" && e.CalendarEnv != "" {
			m.CalendarSource = e.CalendarEnv
			m.CalendarID = strings.TrimSpace(os.Getenv(e.CalendarEnv))
		}
		members = append(members, m)
	}
	return booking.NewRoster(members...), nil
}
