// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package messaging

import (
	"context"
	"strings"

	"github.com/efchatnet/efchat-core/backend/apperr"
	"github.com/efchatnet/efchat-core/backend/models"
)

// Search finds messages containing query across everything viewerID can see,
// newest first. Each hit names the conversation partner or group it came from.
func (s *Service) Search(ctx context.Context, viewerID int64, query string) ([]models.MessageSearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search query cannot be empty")
	}

	msgs, err := s.store.SearchMessages(ctx, viewerID, query, s.cfg.SearchLimit)
	if err != nil {
		return nil, internal("messaging.Search", err)
	}

	convs := make(map[int64]*models.Conversation)
	groups := make(map[int64]*models.Group)
	var others []int64
	for _, m := range msgs {
		switch m.Scope.Kind {
		case models.ScopeDirect:
			if _, ok := convs[m.Scope.ID]; ok {
				continue
			}
			conv, err := s.store.GetConversation(ctx, m.Scope.ID)
			if err != nil {
				return nil, internal("messaging.Search.GetConversation", err)
			}
			convs[conv.ID] = conv
			others = append(others, conv.Other(viewerID))
		case models.ScopeGroup:
			if _, ok := groups[m.Scope.ID]; ok {
				continue
			}
			group, err := s.store.GetGroup(ctx, m.Scope.ID)
			if err != nil {
				return nil, internal("messaging.Search.GetGroup", err)
			}
			groups[group.ID] = group
		}
	}
	profiles := s.resolveProfiles(ctx, others)

	results := make([]models.MessageSearchResult, 0, len(msgs))
	for _, m := range msgs {
		if !Searchable(m, viewerID, nil) {
			continue
		}
		var cp models.Counterpart
		switch m.Scope.Kind {
		case models.ScopeDirect:
			p := profileOrID(profiles, convs[m.Scope.ID].Other(viewerID))
			cp = models.Counterpart{Kind: models.CounterpartDirect, OtherUser: &p}
		case models.ScopeGroup:
			g := groups[m.Scope.ID]
			cp = models.Counterpart{Kind: models.CounterpartGroup, Group: &models.GroupRef{ID: g.ID, Name: g.Name, Picture: g.Picture}}
		}
		results = append(results, models.MessageSearchResult{Message: render(m, nil, nil), Counterpart: cp})
	}
	return results, nil
}
