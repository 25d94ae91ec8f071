package events

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a server-pushed event. The set is closed and versioned
// additively: new types may be added, existing ones never change meaning.
// Clients must skip types they do not recognise.
type EventType string

const (
	RecipeCreated   EventType = "recipe:created"
	RecipeUpdated   EventType = "recipe:updated"
	RecipeDeleted   EventType = "recipe:deleted"
	RecipeFavorited EventType = "recipe:favorited"

	ShoppingListCreated     EventType = "shopping_list:created"
	ShoppingListUpdated     EventType = "shopping_list:updated"
	ShoppingListDeleted     EventType = "shopping_list:deleted"
	ShoppingListItemChecked EventType = "shopping_list:item_checked"

	MealPlanCreated EventType = "meal_plan:created"
	MealPlanUpdated EventType = "meal_plan:updated"
	MealPlanDeleted EventType = "meal_plan:deleted"

	HouseholdMemberJoined EventType = "household:member_joined"
	HouseholdMemberLeft   EventType = "household:member_left"
	HouseholdUpdated      EventType = "household:updated"
	HouseholdDeleted      EventType = "household:deleted"

	CookSessionStarted   EventType = "cook_session:started"
	CookSessionCompleted EventType = "cook_session:completed"

	DataSync EventType = "data:sync"
	Ping     EventType = "ping"
	Pong     EventType = "pong"
)

var knownTypes = map[EventType]struct{}{
	RecipeCreated: {}, RecipeUpdated: {}, RecipeDeleted: {}, RecipeFavorited: {},
	ShoppingListCreated: {}, ShoppingListUpdated: {}, ShoppingListDeleted: {}, ShoppingListItemChecked: {},
	MealPlanCreated: {}, MealPlanUpdated: {}, MealPlanDeleted: {},
	HouseholdMemberJoined: {}, HouseholdMemberLeft: {}, HouseholdUpdated: {}, HouseholdDeleted: {},
	CookSessionStarted: {}, CookSessionCompleted: {},
	DataSync: {}, Ping: {}, Pong: {},
}

// Known reports whether t is part of the closed event set.
func (t EventType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Envelope is the outbound wire message, both for local delivery and for
// messages crossing the bus between instances.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode marshals payload into an Envelope and returns the wire bytes.
// Payload may be any JSON-serialisable value; nil encodes as "null".
func Encode(t EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	wire, err := json.Marshal(Envelope{Type: t, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", t, err)
	}
	return wire, nil
}

// Decode parses wire bytes back into an Envelope.
func Decode(wire []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(wire, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope has no type")
	}
	return env, nil
}

// Inbound client frame kinds.
const (
	ClientPing        = "ping"
	ClientSubscribe   = "subscribe"
	ClientUnsubscribe = "unsubscribe"
)

// ClientMessage is an inbound frame from a connected client. Timestamp is an
// opaque correlation token echoed back in pong replies.
type ClientMessage struct {
	Type         string          `json:"type"`
	Timestamp    json.RawMessage `json:"timestamp,omitempty"`
	Subscription string          `json:"subscription,omitempty"`
}

// ParseClientMessage parses an inbound frame. A frame that is not valid JSON
// or carries no type is reported as an error; unknown types parse fine and
// are the caller's to ignore.
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("failed to parse client message: %w", err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("client message has no type")
	}
	return msg, nil
}

// PongData is the payload of a pong reply, echoing the client's token.
type PongData struct {
	Timestamp json.RawMessage `json:"timestamp"`
}

// SyncData is the payload of the initial data:sync event confirming a
// session is live.
type SyncData struct {
	ConnectionID string `json:"connection_id"`
}
