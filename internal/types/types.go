package types

import (
	"time"
)

type User struct {
	Id         int       `json:"id"`
	MemberCode string    `json:"member_code"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	Password   string    `json:"-"`
	Verified   *bool     `json:"verified"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

type Ad struct {
	Id          int       `json:"id"`
	OwnerCode   string    `json:"owner_code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	MinPeople   int       `json:"min_people"`
	MaxPeople   int       `json:"max_people"`
	Available   int       `json:"available"`
	EventDate   string    `json:"event_date"`
	EventTime   string    `json:"event_time"`
	Info        string    `json:"info,omitempty"`
	AutoReserve bool      `json:"auto_reserve"`
	Gender      string    `json:"gender,omitempty"`
	GroupSlug   string    `json:"group_slug,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type Request struct {
	Id     int `json:"id"`
	AdId   int `json:"ad_id"`
	UserId int `json:"user_id"`
	// Answer is nil while the request is pending, 1 once accepted, 0 once rejected.
	Answer    *int      `json:"answer"`
	User      User      `json:"user,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Group struct {
	Id        int       `json:"id"`
	AdId      *int      `json:"ad_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	SeqId     int       `json:"seq_id"`
	Members   []Member  `json:"members,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Member struct {
	UserId    int    `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsAdmin   bool   `json:"is_admin"`
	IsPresent bool   `json:"is_present,omitempty"`
}

type Message struct {
	SeqId      int       `json:"seq_id"`
	GroupSlug  string    `json:"group_slug"`
	UserId     int       `json:"user_id,omitempty"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

type GenderTally struct {
	Male   int `json:"male"`
	Female int `json:"female"`
}
