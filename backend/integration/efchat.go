// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package integration

import (
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/efchatnet/efchat-core/backend/handlers"
	"github.com/efchatnet/efchat-core/backend/messaging"
	"github.com/efchatnet/efchat-core/backend/middleware"
)

// EventsTokenParam carries the bearer token on GET /api/events
const EventsTokenParam = "access_token"

// ChatIntegration exposes the messaging core as a set of routes that can be
// mounted on an existing efchat router
type ChatIntegration struct {
	service        *messaging.Service
	dmHandler      *handlers.DMHandler
	groupHandler   *handlers.GroupHandler
	messageHandler *handlers.MessageHandler
	eventHandler   *handlers.EventHandler
	jwtSecret      string
	jwtIssuer      string
}

// Config holds configuration for the chat integration
type Config struct {
	Service *messaging.Service
	// Subscriber enables GET /api/events; nil leaves the route unregistered.
	Subscriber handlers.Subscriber
	Logger     *log.Logger
	JWTSecret  string
	JWTIssuer  string
}

// NewChatIntegration wires handlers around an already constructed service
func NewChatIntegration(config *Config) (*ChatIntegration, error) {
	if config.Service == nil {
		return nil, &ValidationError{Message: "messaging service is not configured"}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	c := &ChatIntegration{
		service:        config.Service,
		dmHandler:      handlers.NewDMHandler(config.Service, logger),
		groupHandler:   handlers.NewGroupHandler(config.Service, logger),
		messageHandler: handlers.NewMessageHandler(config.Service, logger),
		jwtSecret:      config.JWTSecret,
		jwtIssuer:      config.JWTIssuer,
	}
	if config.Subscriber != nil {
		c.eventHandler = handlers.NewEventHandler(config.Subscriber, logger)
	}
	return c, nil
}

// RegisterRoutes adds chat routes to an existing router
// If authMiddleware is nil, it will use the built-in JWT validation
func (c *ChatIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) error {
	auth := authMiddleware
	if auth == nil {
		if c.jwtSecret == "" {
			return &ValidationError{Message: "JWT secret is not configured"}
		}
		auth = middleware.NewAuthMiddleware(c.jwtSecret, c.jwtIssuer)
	}

	// EventSource cannot send headers, so the stream also takes ?access_token=.
	// Registered before /api so the prefix match below does not shadow it.
	if c.eventHandler != nil {
		events := router.PathPrefix("/api/events").Subrouter()
		events.Use(middleware.TokenFromQuery(EventsTokenParam), auth)
		events.HandleFunc("", c.eventHandler.Stream).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth)

	// Direct conversations
	api.HandleFunc("/conversations", c.dmHandler.ListConversations).Methods("GET")
	api.HandleFunc("/conversations", c.dmHandler.OpenConversation).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}", c.dmHandler.GetConversation).Methods("GET")
	api.HandleFunc("/conversations/{conversationId}/messages", c.dmHandler.ListMessages).Methods("GET")
	api.HandleFunc("/conversations/{conversationId}/messages", c.dmHandler.Send).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}/read", c.dmHandler.MarkRead).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}/typing", c.dmHandler.GetTyping).Methods("GET")
	api.HandleFunc("/conversations/{conversationId}/typing", c.dmHandler.SetTyping).Methods("PUT")
	api.HandleFunc("/conversations/{conversationId}/mute", c.dmHandler.SetMute).Methods("PUT")

	// Messages by id
	api.HandleFunc("/messages", c.dmHandler.SendDirect).Methods("POST")
	api.HandleFunc("/messages/status", c.messageHandler.UpdateStatus).Methods("POST")
	api.HandleFunc("/messages/search", c.messageHandler.Search).Methods("GET")
	api.HandleFunc("/messages/{messageId}", c.messageHandler.Edit).Methods("PUT", "PATCH")
	api.HandleFunc("/messages/{messageId}", c.messageHandler.Delete).Methods("DELETE")
	api.HandleFunc("/unread", c.messageHandler.UnreadTotal).Methods("GET")

	// Group endpoints
	api.HandleFunc("/groups", c.groupHandler.ListGroups).Methods("GET")
	api.HandleFunc("/groups", c.groupHandler.CreateGroup).Methods("POST")
	api.HandleFunc("/groups/{groupId}", c.groupHandler.GetGroup).Methods("GET")
	api.HandleFunc("/groups/{groupId}/members", c.groupHandler.AddMember).Methods("POST")
	api.HandleFunc("/groups/{groupId}/members/{userId}", c.groupHandler.RemoveMember).Methods("DELETE")
	api.HandleFunc("/groups/{groupId}/members/{userId}/role", c.groupHandler.SetMemberRole).Methods("PUT")
	api.HandleFunc("/groups/{groupId}/messages", c.groupHandler.ListMessages).Methods("GET")
	api.HandleFunc("/groups/{groupId}/messages", c.groupHandler.SendGroupMessage).Methods("POST")
	api.HandleFunc("/groups/{groupId}/read", c.groupHandler.MarkRead).Methods("POST")
	api.HandleFunc("/groups/{groupId}/mute", c.groupHandler.SetMute).Methods("PUT")
	return nil
}

// GetService returns the underlying messaging service
func (c *ChatIntegration) GetService() *messaging.Service {
	return c.service
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
