package chat

import (
	"context"
	"log"
	"sync"

	"github.com/gatherup/gatherup/internal/database"
	"github.com/gatherup/gatherup/internal/notification"
	"github.com/gatherup/gatherup/internal/stats"
)

type unloadGroupRequest struct {
	slug    string
	deleted bool
	done    chan struct{}
}

type stopRequest struct {
	done chan struct{}
}

// ChatServer is the hub owning every live group chat. Group chats are
// loaded on first join and unloaded when idle or deleted.
type ChatServer struct {
	log             *log.Logger
	db              database.GatherUpRepository
	notifier        notification.Dispatcher
	stats           stats.StatsProvider
	presence        *PresenceTracker
	clients         map[*Client]struct{}
	clientsLock     sync.Mutex
	joinChan        chan *ClientMessage
	registerChan    chan *Client
	deRegisterChan  chan *Client
	unloadGroupChan chan unloadGroupRequest
	groups          map[string]*GroupChat
	stop            chan stopRequest
}

func NewChatServer(logger *log.Logger, db database.GatherUpRepository, notifier notification.Dispatcher, su stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:             logger,
		db:              db,
		notifier:        notifier,
		stats:           su,
		presence:        NewPresenceTracker(),
		clients:         make(map[*Client]struct{}),
		joinChan:        make(chan *ClientMessage, 256),
		registerChan:    make(chan *Client, 256),
		deRegisterChan:  make(chan *Client, 256),
		unloadGroupChan: make(chan unloadGroupRequest, 256),
		groups:          make(map[string]*GroupChat),
		stop:            make(chan stopRequest),
	}

	su.RegisterMetric(stats.ActiveConnections)
	su.RegisterMetric(stats.ActiveGroups)
	su.RegisterMetric(stats.MessagesTotal)
	su.RegisterMetric(stats.NotificationsSent)
	su.RegisterMetric(stats.NotificationFailures)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case client := <-cs.registerChan:
			cs.addClient(client)
			cs.stats.Incr(stats.ActiveConnections)
		case client := <-cs.deRegisterChan:
			cs.removeClient(client)
			cs.stats.Decr(stats.ActiveConnections)
		case req := <-cs.unloadGroupChan:
			cs.handleUnload(req)
		case req := <-cs.stop:
			cs.log.Println("shutting down group chats")
			for _, g := range cs.groups {
				done := make(chan string)
				g.exit <- exitReq{done: done}
				<-done
			}
			cs.groups = make(map[string]*GroupChat)

			if req.done != nil {
				close(req.done)
			}
			return
		}
	}
}

func (cs *ChatServer) handleJoin(joinMsg *ClientMessage) {
	slug := joinMsg.Join.GroupSlug
	if g, ok := cs.groups[slug]; ok {
		select {
		case g.joinChan <- joinMsg:
		default:
			cs.log.Printf("join channel full on group %q", g.slug)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	dbGroup, err := cs.db.GetGroupBySlug(slug)
	if err != nil {
		cs.log.Printf("group %q not found: %v", slug, err)
		joinMsg.client.queueMessage(ErrGroupNotFound(joinMsg.Id))
		return
	}

	g := &GroupChat{
		id:            dbGroup.Id,
		slug:          dbGroup.Slug,
		name:          dbGroup.Name,
		cs:            cs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		clients:       make(map[*Client]struct{}),
		log:           cs.log,
		exit:          make(chan exitReq),
	}

	cs.groups[g.slug] = g
	cs.stats.Incr(stats.ActiveGroups)
	g.joinChan <- joinMsg

	go g.start()
}

func (cs *ChatServer) handleUnload(req unloadGroupRequest) {
	g, ok := cs.groups[req.slug]
	if !ok {
		if req.done != nil {
			close(req.done)
		}
		return
	}

	delete(cs.groups, req.slug)
	cs.stats.Decr(stats.ActiveGroups)

	done := make(chan string)
	g.exit <- exitReq{deleted: req.deleted, done: done}
	<-done

	if req.done != nil {
		close(req.done)
	}
}

// UnloadGroup evicts a live group chat, notifying attached clients when
// the group was deleted. No-op when the group is not loaded.
func (cs *ChatServer) UnloadGroup(ctx context.Context, slug string, deleted bool) error {
	done := make(chan struct{})
	select {
	case cs.unloadGroupChan <- unloadGroupRequest{slug: slug, deleted: deleted, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.deRegisterChan <- c
}

// Presence exposes the tracker so the transport layer can report live
// presence alongside durable membership.
func (cs *ChatServer) Presence() *PresenceTracker {
	return cs.presence
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	done := make(chan struct{})
	select {
	case cs.stop <- stopRequest{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
