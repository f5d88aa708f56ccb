// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/efchatnet/efchat-core/backend/apperr"
	"github.com/efchatnet/efchat-core/backend/middleware"
)

var validate = newValidator()

// newValidator reports fields by their json names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation: http.StatusBadRequest,
	apperr.KindPermission: http.StatusForbidden,
	apperr.KindNotFound:   http.StatusNotFound,
	apperr.KindState:      http.StatusConflict,
	apperr.KindConflict:   http.StatusConflict,
	apperr.KindInvariant:  http.StatusUnprocessableEntity,
	apperr.KindInternal:   http.StatusInternalServerError,
}

// StatusFor maps an error kind onto its HTTP status
func StatusFor(kind apperr.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error", "kind"}. Internal causes are logged
// and never leave the process.
func writeError(w http.ResponseWriter, r *http.Request, logger *log.Logger, err error) {
	kind := apperr.KindOf(err)
	msg := "internal error"

	var appErr *apperr.Error
	if errors.As(err, &appErr) && kind != apperr.KindInternal {
		msg = appErr.Message
	}
	if kind == apperr.KindInternal {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestID(r.Context()),
			"err", err)
	}

	writeJSON(w, StatusFor(kind), map[string]string{"error": msg, "kind": string(kind)})
}

// decode reads a JSON body into dst and runs struct validation on it
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperr.Validation("invalid field: " + verrs[0].Field())
		}
		return apperr.Validation("invalid request body")
	}
	return nil
}

// pathID parses a positive int64 route variable
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

// currentUser returns the authenticated user or writes a 401
func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "kind": "unauthorized"})
		return 0, false
	}
	return userID, true
}
