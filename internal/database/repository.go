package database

type GatherUpRepository interface {
	Ping() error

	CreateUser(params CreateUserParams) (User, error)
	UpdateUser(params UpdateUserParams) (User, error)
	GetUserById(userId int) (User, error)
	GetUserByEmail(email string) (User, error)
	GetUserByMemberCode(memberCode string) (User, error)
	SetUserVerification(userId int, verified bool) error

	CreateAd(params CreateAdParams) (Ad, Group, error)
	GetAdById(adId int) (Ad, error)
	ListAds(gender string) ([]Ad, error)
	DeleteAd(adId int) (Ad, error)

	CreateRequest(adId, userId int) (Request, error)
	GetRequestById(requestId int) (Request, error)
	RequestExists(adId, userId int) bool
	ListRequestsForAd(adId int) ([]Request, error)
	AcceptRequest(requestId int) (Request, error)
	RejectRequest(requestId int) (Request, error)
	DeleteRequest(requestId int) error
	RemoveInterest(adId, userId int) error
	GenderTally(adId int) (GenderTally, error)

	GetGroupBySlug(slug string) (Group, error)
	GetGroupByAdId(adId int) (Group, error)
	ListGroupsForUser(userId int) ([]Group, error)
	GetGroupMembers(groupId int) ([]GroupMember, error)
	IsGroupMember(groupId, userId int) bool
	RemoveGroupMember(groupId, userId int) error

	CreateMessage(msg Message) (Message, error)
	GetMessages(groupId, since, before, limit int) ([]Message, error)

	UpsertSubscription(userId int, endpoint string) (Subscription, error)
	GetSubscriptionByUserId(userId int) (Subscription, error)
	DeleteSubscription(userId int) error
}
