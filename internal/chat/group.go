package chat

import (
	"log"
	"sync"
	"time"

	"github.com/gatherup/gatherup/internal/database"
	"github.com/gatherup/gatherup/internal/notification"
	"github.com/gatherup/gatherup/internal/stats"
	"github.com/gatherup/gatherup/internal/types"
)

const idleGroupTimeout = time.Minute * 5

type exitReq struct {
	deleted bool
	done    chan string
}

// GroupChat is the live chat attached to one group. It owns its clients
// and processes joins, leaves and published messages on a single
// goroutine; durable state goes through the repository.
type GroupChat struct {
	id            int
	slug          string
	name          string
	cs            *ChatServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	clients       map[*Client]struct{}
	clientLock    sync.RWMutex
	log           *log.Logger
	// killTimer unloads the group once no clients remain
	killTimer *time.Timer
	// exit signals the group to shut down
	exit chan exitReq
}

func (g *GroupChat) start() {
	g.log.Printf("starting group chat %q", g.slug)
	g.killTimer = time.NewTimer(idleGroupTimeout)
	g.killTimer.Stop()

	for {
		select {
		case join := <-g.joinChan:
			g.handleJoin(join)
		case leaveMsg := <-g.leaveChan:
			g.handleLeave(leaveMsg)
		case msg := <-g.clientMsgChan:
			if msg.Publish != nil {
				g.saveAndBroadcast(msg)
			}
		case <-g.killTimer.C:
			g.handleTimeout()
		case e := <-g.exit:
			g.handleExit(e)
			return
		}
	}
}

func (g *GroupChat) handleJoin(join *ClientMessage) {
	// stop the kill timer since we have a new client
	g.killTimer.Stop()

	c := join.client
	if !g.cs.db.IsGroupMember(g.id, c.user.Id) {
		g.log.Printf("user %d is not a member of group %q", c.user.Id, g.slug)
		c.queueMessage(ErrNotMember(join.Id))
		if len(g.clients) == 0 {
			g.killTimer.Reset(idleGroupTimeout)
		}
		return
	}

	dbMembers, err := g.cs.db.GetGroupMembers(g.id)
	if err != nil {
		g.log.Println("GetGroupMembers:", err)
		c.queueMessage(ErrInternalError(join.Id))
		if len(g.clients) == 0 {
			g.killTimer.Reset(idleGroupTimeout)
		}
		return
	}

	g.addClient(c)
	first := g.cs.presence.Add(g.slug, c.user.Id)

	members := make([]types.Member, len(dbMembers))
	for i, m := range dbMembers {
		members[i] = types.Member{
			UserId:    m.UserId,
			FirstName: m.FirstName,
			LastName:  m.LastName,
			IsAdmin:   m.IsAdmin,
			IsPresent: g.cs.presence.IsPresent(g.slug, m.UserId),
		}
	}

	c.queueMessage(NoErrOK(join.Id, types.Group{
		Id:      g.id,
		Name:    g.name,
		Slug:    g.slug,
		Members: members,
	}))

	// announce the user once their first connection arrives
	if first {
		g.broadcast(&ServerMessage{
			Notification: &Notification{
				Presence: &Presence{
					Present:   true,
					UserId:    c.user.Id,
					GroupSlug: g.slug,
				},
			},
			SkipClient: c,
		})
	}
}

func (g *GroupChat) handleLeave(leaveMsg *ClientMessage) {
	client := leaveMsg.client
	g.removeClient(client)

	gone := g.cs.presence.Remove(g.slug, leaveMsg.UserId)

	if leaveMsg.Id != 0 {
		client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	// announce absence once the user has no connections left in the group
	if gone {
		g.broadcast(&ServerMessage{
			Notification: &Notification{
				Presence: &Presence{
					Present:   false,
					UserId:    leaveMsg.UserId,
					GroupSlug: g.slug,
				},
			},
			SkipClient: client,
		})
	}
}

// saveAndBroadcast persists the message, fans it out to attached clients
// except the sender, then push-notifies durable members who are neither
// the sender nor currently viewing the chat. The broadcast never precedes
// the write, so history refetched after a reconnect always covers what
// was delivered live.
func (g *GroupChat) saveAndBroadcast(msg *ClientMessage) {
	saved, err := g.cs.db.CreateMessage(database.Message{
		GroupId:   g.id,
		UserId:    msg.client.user.Id,
		Content:   msg.Publish.Content,
		CreatedAt: msg.Timestamp,
	})
	if err != nil {
		g.log.Println("error saving message:", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	msg.client.queueMessage(NoErrAccepted(msg.Id))
	g.cs.stats.Incr(stats.MessagesTotal)

	// recipients only ever learn the sender's display name, matching the
	// history endpoint
	senderName := msg.client.user.FirstName + " " + msg.client.user.LastName
	g.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Id:        msg.Id,
			Timestamp: saved.CreatedAt,
		},
		Message: &types.Message{
			SeqId:      saved.SeqId,
			GroupSlug:  g.slug,
			SenderName: senderName,
			Content:    msg.Publish.Content,
			Timestamp:  saved.CreatedAt,
		},
		SkipClient: msg.client,
	})

	g.notifyAbsentMembers(msg.UserId, senderName, msg.Publish.Content)
}

// notifyAbsentMembers pushes the message to every durable member not
// actively viewing the chat. Each dispatch failure is logged on its own;
// one dead endpoint never blocks the rest.
func (g *GroupChat) notifyAbsentMembers(senderId int, senderName, content string) {
	members, err := g.cs.db.GetGroupMembers(g.id)
	if err != nil {
		g.log.Println("GetGroupMembers:", err)
		return
	}

	for _, member := range members {
		if member.UserId == senderId {
			continue
		}
		if g.cs.presence.IsPresent(g.slug, member.UserId) {
			// actively viewing, the broadcast already reached them
			continue
		}

		sub, err := g.cs.db.GetSubscriptionByUserId(member.UserId)
		if err != nil {
			continue
		}

		if err := g.cs.notifier.Send(sub.Endpoint, notification.Payload{
			Title:   senderName,
			Message: content,
		}); err != nil {
			g.log.Printf("notify member %d of group %q: %v", member.UserId, g.slug, err)
			g.cs.stats.Incr(stats.NotificationFailures)
			continue
		}

		g.cs.stats.Incr(stats.NotificationsSent)
	}
}

func (g *GroupChat) handleTimeout() {
	g.log.Printf("group chat %q timed out", g.slug)
	select {
	case g.cs.unloadGroupChan <- unloadGroupRequest{slug: g.slug}:
	default:
		g.log.Printf("unload channel full, keeping group %q", g.slug)
		g.killTimer.Reset(idleGroupTimeout)
	}
}

func (g *GroupChat) handleExit(e exitReq) {
	g.log.Printf("group chat %q is exiting", g.slug)
	if e.deleted {
		g.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				GroupDeleted: &GroupDeleted{GroupSlug: g.slug},
			},
		})
	}

	g.clientLock.Lock()
	for c := range g.clients {
		c.delGroup(g.slug)
		g.cs.presence.Remove(g.slug, c.user.Id)
	}
	g.clients = make(map[*Client]struct{})
	g.clientLock.Unlock()

	if e.done != nil {
		e.done <- g.slug
	}
}

func (g *GroupChat) addClient(c *Client) {
	g.clientLock.Lock()
	defer g.clientLock.Unlock()

	g.clients[c] = struct{}{}
	c.addGroup(g)
}

func (g *GroupChat) removeClient(c *Client) {
	g.clientLock.Lock()
	defer g.clientLock.Unlock()

	if _, ok := g.clients[c]; !ok {
		g.log.Printf("client %q not found in group %q", c.user.MemberCode, g.slug)
		return
	}

	delete(g.clients, c)
	c.delGroup(g.slug)

	if len(g.clients) == 0 {
		g.log.Printf("no clients in %q, starting kill timer", g.slug)
		g.killTimer.Reset(idleGroupTimeout)
	}
}

func (g *GroupChat) broadcast(msg *ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	g.clientLock.RLock()
	defer g.clientLock.RUnlock()

	for client := range g.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}
