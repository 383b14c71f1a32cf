package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Profiles []profileSchema `toml:"profiles"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported profiles schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type profileSchema struct {
	Name        string      `toml:"name"`
	BaseURL     string      `toml:"base_url,omitempty"`
	LastLoginAt string      `toml:"last_login_at,omitempty"`
	User        *userSchema `toml:"user,omitempty"`
}

type userSchema struct {
	ID        int64  `toml:"id"`
	Username  string `toml:"username"`
	Email     string `toml:"email,omitempty"`
	Role      string `toml:"role"`
	FirstName string `toml:"first_name,omitempty"`
	LastName  string `toml:"last_name,omitempty"`

	Student *studentProfileSchema `toml:"student_profile,omitempty"`
	Teacher *teacherProfileSchema `toml:"teacher_profile,omitempty"`
}

type studentProfileSchema struct {
	ID          int64  `toml:"id"`
	Major       string `toml:"major,omitempty"`
	YearOfStudy int    `toml:"year_of_study,omitempty"`
}

type teacherProfileSchema struct {
	ID             int64  `toml:"id"`
	Position       string `toml:"position,omitempty"`
	Department     string `toml:"department,omitempty"`
	AcademicDegree string `toml:"academic_degree,omitempty"`
}
