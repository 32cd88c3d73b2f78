package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubClient(playerID string) *tableClient {
	return &tableClient{
		send:     make(chan any, 16),
		playerID: playerID,
	}
}

func receive(t *testing.T, c *tableClient) any {
	t.Helper()

	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hub message")
		return nil
	}
}

func receiveType[T any](t *testing.T, c *tableClient) T {
	t.Helper()

	for {
		msg := receive(t, c)
		if typed, ok := msg.(T); ok {
			return typed
		}
	}
}

func startHub(t *testing.T) (*tableHub, *Config) {
	t.Helper()

	cfg := &Config{
		dataDir:       t.TempDir(),
		port:          8080,
		playerTimeout: 10 * time.Millisecond,
	}

	app, err := newApp(cfg)
	require.NoError(t, err)

	hub := newTableHub("TESTTBLE")
	go hub.run(cfg, app)

	return hub, cfg
}

func TestTableFirstConnectionBecomesOrganizer(t *testing.T) {
	hub, _ := startHub(t)

	organizer := newHubClient("organizer")
	hub.register <- organizer

	info := receiveType[SessionInfoMessage](t, organizer)
	assert.True(t, info.IsOrganizer)
	assert.False(t, info.IsExisting)

	player := newHubClient("player1")
	hub.register <- player

	info = receiveType[SessionInfoMessage](t, player)
	assert.False(t, info.IsOrganizer)
}

func TestTableJoinBroadcastsState(t *testing.T) {
	hub, _ := startHub(t)

	organizer := newHubClient("organizer")
	hub.register <- organizer
	receiveType[TableStateMessage](t, organizer)

	player := newHubClient("player1")
	hub.register <- player
	receiveType[TableStateMessage](t, player)
	receiveType[TableStateMessage](t, organizer) // registration broadcast

	hub.joins <- tableJoin{client: player, msg: TableClientMessage{Type: "join", Name: "Alice"}}

	state := receiveType[TableStateMessage](t, organizer)
	assert.Equal(t, []string{"Alice"}, state.Players)
	assert.True(t, state.Organizer)

	state = receiveType[TableStateMessage](t, player)
	assert.Equal(t, []string{"Alice"}, state.Players)
	assert.False(t, state.Organizer)
}

func TestTableNameCollisionGoesToOffenderOnly(t *testing.T) {
	hub, _ := startHub(t)

	first := newHubClient("player1")
	hub.register <- first
	receiveType[TableStateMessage](t, first)

	hub.joins <- tableJoin{client: first, msg: TableClientMessage{Type: "join", Name: "Alice"}}
	receiveType[TableStateMessage](t, first)

	second := newHubClient("player2")
	hub.register <- second
	receiveType[TableStateMessage](t, second)

	hub.joins <- tableJoin{client: second, msg: TableClientMessage{Type: "join", Name: "alice"}}

	collision := receiveType[CollisionMessage](t, second)
	assert.Contains(t, collision.Message, "already taken")

	// The existing player sees no new state broadcast, only the earlier ones.
	hub.mu.RLock()
	assert.Len(t, hub.players, 1)
	hub.mu.RUnlock()
}

func TestTableLockedLobbyRejectsNewPlayers(t *testing.T) {
	hub, _ := startHub(t)

	organizer := newHubClient("organizer")
	hub.register <- organizer
	receiveType[TableStateMessage](t, organizer)

	lock := true
	hub.cmds <- tableCommand{client: organizer, msg: TableClientMessage{Type: "lock_lobby", Lock: &lock}}
	state := receiveType[TableStateMessage](t, organizer)
	assert.True(t, state.Locked)

	player := newHubClient("player1")
	hub.register <- player
	receiveType[TableStateMessage](t, player)

	hub.joins <- tableJoin{client: player, msg: TableClientMessage{Type: "join", Name: "Alice"}}

	rejection := receiveType[SimpleMessage](t, player)
	assert.Equal(t, "lobby_locked", rejection.Type)
}

func TestTableNonOrganizerCommandsIgnored(t *testing.T) {
	hub, _ := startHub(t)

	organizer := newHubClient("organizer")
	hub.register <- organizer
	receiveType[TableStateMessage](t, organizer)

	player := newHubClient("player1")
	hub.register <- player
	receiveType[TableStateMessage](t, player)
	receiveType[TableStateMessage](t, organizer) // registration broadcast

	lock := true
	hub.cmds <- tableCommand{client: player, msg: TableClientMessage{Type: "lock_lobby", Lock: &lock}}

	// Organizer locking afterwards still works, proving the loop advanced
	// past the ignored command without applying it.
	hub.cmds <- tableCommand{client: organizer, msg: TableClientMessage{Type: "lock_lobby", Lock: &lock}}
	state := receiveType[TableStateMessage](t, organizer)
	assert.True(t, state.Locked)
}

func TestTableDealBroadcastsPods(t *testing.T) {
	hub, _ := startHub(t)

	organizer := newHubClient("organizer")
	hub.register <- organizer
	receiveType[TableStateMessage](t, organizer)

	clients := make([]*tableClient, 0, 6)
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5", "p6"} {
		c := newHubClient(id)
		hub.register <- c
		receiveType[TableStateMessage](t, c)
		hub.joins <- tableJoin{client: c, msg: TableClientMessage{Type: "join", Name: "Player " + id}}
		receiveType[TableStateMessage](t, c)
		clients = append(clients, c)
	}

	hub.cmds <- tableCommand{client: organizer, msg: TableClientMessage{Type: "deal"}}

	pods := receiveType[PodsMessage](t, organizer)
	assert.Equal(t, 6, pods.Stats.TotalPlayers)
	assert.NotEmpty(t, pods.Pods)

	for _, c := range clients {
		result := receiveType[PodsMessage](t, c)
		assert.Equal(t, pods.Stats.TotalPods, result.Stats.TotalPods)
	}
}

func TestTableDealWithTooFewPlayers(t *testing.T) {
	hub, _ := startHub(t)

	organizer := newHubClient("organizer")
	hub.register <- organizer
	receiveType[TableStateMessage](t, organizer)

	player := newHubClient("p1")
	hub.register <- player
	receiveType[TableStateMessage](t, player)
	hub.joins <- tableJoin{client: player, msg: TableClientMessage{Type: "join", Name: "Alice"}}
	receiveType[TableStateMessage](t, player)

	hub.cmds <- tableCommand{client: organizer, msg: TableClientMessage{Type: "deal"}}

	failure := receiveType[SimpleMessage](t, organizer)
	assert.Equal(t, "deal_error", failure.Type)
}

func TestTableDisconnectedPlayerReaped(t *testing.T) {
	hub, _ := startHub(t)

	organizer := newHubClient("organizer")
	hub.register <- organizer
	receiveType[TableStateMessage](t, organizer)

	player := newHubClient("p1")
	hub.register <- player
	receiveType[TableStateMessage](t, player)
	hub.joins <- tableJoin{client: player, msg: TableClientMessage{Type: "join", Name: "Alice"}}
	receiveType[TableStateMessage](t, player)

	hub.unreg <- player

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.players) == 0
	}, time.Second, 10*time.Millisecond)
}
