package domain

import "time"

type GroupID int64

type Group struct {
	ID            GroupID   `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Code          string    `json:"code" yaml:"code"`
	Description   string    `json:"description" yaml:"description"`
	CreatedBy     UserID    `json:"created_by" yaml:"created_by"`
	CreatedByName string    `json:"created_by_name" yaml:"created_by_name"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	IsActive      bool      `json:"is_active" yaml:"is_active"`
	MemberCount   int       `json:"member_count" yaml:"member_count"`
	TeacherCount  int       `json:"teacher_count" yaml:"teacher_count"`
}

type GroupDetail struct {
	Group    `yaml:",inline"`
	Members  []GroupMember  `json:"members" yaml:"members"`
	Teachers []GroupTeacher `json:"teachers" yaml:"teachers"`
}

type GroupMember struct {
	ID          int64     `json:"id" yaml:"id"`
	Group       GroupID   `json:"group" yaml:"group"`
	Student     int64     `json:"student" yaml:"student"`
	StudentName string    `json:"student_name" yaml:"student_name"`
	Role        string    `json:"role" yaml:"role"`
	JoinedAt    time.Time `json:"joined_at" yaml:"joined_at"`
	IsActive    bool      `json:"is_active" yaml:"is_active"`
}

type GroupTeacher struct {
	ID          int64     `json:"id" yaml:"id"`
	Group       GroupID   `json:"group" yaml:"group"`
	Teacher     int64     `json:"teacher" yaml:"teacher"`
	TeacherName string    `json:"teacher_name" yaml:"teacher_name"`
	JoinedAt    time.Time `json:"joined_at" yaml:"joined_at"`
	IsActive    bool      `json:"is_active" yaml:"is_active"`
}

// ActiveMembers skips memberships the server kept for history.
func (g GroupDetail) ActiveMembers() []GroupMember {
	members := make([]GroupMember, 0, len(g.Members))
	for _, member := range g.Members {
		if member.IsActive {
			members = append(members, member)
		}
	}
	return members
}
