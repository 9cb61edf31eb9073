package database

import "time"

// Request.Answer values. A pending request has a NULL answer.
const (
	AnswerRejected = 0
	AnswerAccepted = 1
)

type User struct {
	Id           int
	MemberCode   string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Gender       string
	// Verified is nil until the user submits verification, then true or
	// false depending on the reviewer's decision.
	Verified  *bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Ad struct {
	Id          int
	OwnerCode   string
	Title       string
	Description string
	MinPeople   int
	MaxPeople   int
	Available   int
	EventDate   string
	EventTime   string
	Info        string
	AutoReserve bool
	Gender      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Request struct {
	Id        int
	AdId      int
	UserId    int
	Answer    *int
	User      User
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Group struct {
	Id        int
	AdId      *int
	Name      string
	Slug      string
	SeqId     int
	CreatedAt time.Time
}

type GroupMember struct {
	Id        int
	GroupId   int
	UserId    int
	FirstName string
	LastName  string
	IsAdmin   bool
	CreatedAt time.Time
}

type Message struct {
	Id         int
	SeqId      int
	GroupId    int
	UserId     int
	SenderName string
	Content    string
	CreatedAt  time.Time
}

type Subscription struct {
	Id        int
	UserId    int
	Endpoint  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateUserParams struct {
	MemberCode   string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Gender       string
}

type UpdateUserParams struct {
	UserId    int
	FirstName string
	LastName  string
	Email     string
	// ResetVerification clears the verified flag, forcing re-verification
	// after a contact field edit.
	ResetVerification bool
}

type CreateAdParams struct {
	OwnerCode   string
	Title       string
	Description string
	MinPeople   int
	MaxPeople   int
	EventDate   string
	EventTime   string
	Info        string
	AutoReserve bool
	Gender      string
	GroupName   string
	GroupSlug   string
	OwnerId     int
}

type GenderTally struct {
	Male   int
	Female int
}
