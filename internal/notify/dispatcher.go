// Package notify fans permission-request events out to user inboxes, the
// live push channel, and email.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"custodian/api/internal/push"
	"custodian/api/internal/store"
	"custodian/api/internal/util"
)

const (
	CategoryRequestCreated  = "approval-request"
	CategoryRequestResolved = "approval-decision"
)

// Store is the persistence surface the dispatcher needs.
type Store interface {
	InsertNotifications(ctx context.Context, items []store.Notification) error
	ListAdminIDs(ctx context.Context) ([]string, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
}

// Pusher delivers live messages. Satisfied by *push.Hub.
type Pusher interface {
	SendToUser(userID string, msg push.Message)
	BroadcastToAdmins(msg push.Message)
}

// Emailer sends workflow emails. Satisfied by *email.Service.
type Emailer interface {
	IsConfigured() bool
	SendRequestCreatedEmail(to, requesterName, kind, documentTitle, reason string) error
	SendRequestResolvedEmail(to, userName, kind, documentTitle, outcome, note string) error
}

// Dispatcher writes the durable inbox rows first, then attempts the
// best-effort channels. Push and email failures are logged and swallowed;
// the inbox row is the delivery guarantee.
type Dispatcher struct {
	store  Store
	pusher Pusher
	email  Emailer
}

func NewDispatcher(s Store, p Pusher, e Emailer) *Dispatcher {
	return &Dispatcher{store: s, pusher: p, email: e}
}

// OnRequestCreated notifies the admin group that a request awaits review.
func (d *Dispatcher) OnRequestCreated(ctx context.Context, request store.PermissionRequest) {
	title := fmt.Sprintf("%s request on %q", request.Kind, request.DocumentTitle)
	message := fmt.Sprintf("%s is asking for %s permission on %q.",
		request.RequesterName, request.Kind, request.DocumentTitle)
	if request.Reason != "" {
		message += " Reason: " + request.Reason
	}

	adminIDs, err := d.store.ListAdminIDs(ctx)
	if err != nil {
		log.Printf("notify: list admins for request %s: %v", request.ID, err)
		return
	}

	items := make([]store.Notification, 0, len(adminIDs))
	for _, adminID := range adminIDs {
		if adminID == request.RequesterID {
			continue
		}
		items = append(items, store.Notification{
			ID:         util.NewID("ntf"),
			UserID:     adminID,
			Title:      title,
			Message:    message,
			Category:   CategoryRequestCreated,
			DocumentID: &request.DocumentID,
			RequestID:  &request.ID,
		})
	}
	if err := d.store.InsertNotifications(ctx, items); err != nil {
		log.Printf("notify: insert inbox rows for request %s: %v", request.ID, err)
	}

	if d.pusher != nil {
		d.pusher.BroadcastToAdmins(push.Message{
			Type:      "new-notification",
			Title:     title,
			Message:   message,
			Category:  CategoryRequestCreated,
			Timestamp: time.Now().UTC(),
		})
	}

	d.emailAdmins(ctx, adminIDs, request)
}

// OnRequestResolved notifies the requester of the decision.
func (d *Dispatcher) OnRequestResolved(ctx context.Context, request store.PermissionRequest) {
	outcome := "rejected"
	if request.Status == store.RequestApproved {
		outcome = "approved"
	}
	title := fmt.Sprintf("Your %s request was %s", request.Kind, outcome)
	message := fmt.Sprintf("Your %s request on %q has been %s.",
		request.Kind, request.DocumentTitle, outcome)
	if request.ResolutionNote != "" {
		message += " Note: " + request.ResolutionNote
	}

	item := store.Notification{
		ID:        util.NewID("ntf"),
		UserID:    request.RequesterID,
		Title:     title,
		Message:   message,
		Category:  CategoryRequestResolved,
		RequestID: &request.ID,
	}
	// The document id is dangling after an approved delete; only link it
	// while the row still exists.
	if !(request.Kind == store.RequestKindDelete && request.Status == store.RequestApproved) {
		item.DocumentID = &request.DocumentID
	}
	if err := d.store.InsertNotifications(ctx, []store.Notification{item}); err != nil {
		log.Printf("notify: insert inbox row for request %s: %v", request.ID, err)
	}

	if d.pusher != nil {
		d.pusher.SendToUser(request.RequesterID, push.Message{
			Type:      "new-notification",
			Title:     title,
			Message:   message,
			Category:  CategoryRequestResolved,
			Timestamp: time.Now().UTC(),
		})
	}

	if d.email != nil && d.email.IsConfigured() {
		requester, err := d.store.GetUserByID(ctx, request.RequesterID)
		if err != nil {
			log.Printf("notify: load requester %s: %v", request.RequesterID, err)
			return
		}
		if err := d.email.SendRequestResolvedEmail(requester.Email, requester.DisplayName,
			request.Kind, request.DocumentTitle, request.Status, request.ResolutionNote); err != nil {
			log.Printf("notify: email requester %s: %v", requester.ID, err)
		}
	}
}

func (d *Dispatcher) emailAdmins(ctx context.Context, adminIDs []string, request store.PermissionRequest) {
	if d.email == nil || !d.email.IsConfigured() {
		return
	}
	for _, adminID := range adminIDs {
		if adminID == request.RequesterID {
			continue
		}
		admin, err := d.store.GetUserByID(ctx, adminID)
		if err != nil {
			log.Printf("notify: load admin %s: %v", adminID, err)
			continue
		}
		if err := d.email.SendRequestCreatedEmail(admin.Email, request.RequesterName,
			request.Kind, request.DocumentTitle, request.Reason); err != nil {
			log.Printf("notify: email admin %s: %v", adminID, err)
		}
	}
}
