package docs

import (
	"strings"
	"time"

	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/remote"
	"github.com/existflow/duetask/internal/session"
)

// Friend request document fields
const (
	RequestFromUID    = "from_uid"
	RequestToUID      = "to_uid"
	RequestFromEmail  = "from_email"
	RequestToEmail    = "to_email"
	RequestFromName   = "from_name"
	RequestToName     = "to_name"
	RequestSentAt     = "send_date"
	RequestAccepted   = "accepted"
	RequestResolved   = "resolved"
	RequestResolvedAt = "resolved_date"
)

// Friend document fields
const (
	FriendUID     = "uid"
	FriendEmail   = "email"
	FriendAddedAt = "added_date"
	FriendStatus  = "status"

	StatusActive = "active"
)

// User profile fields
const (
	ProfileName  = "name"
	ProfileEmail = "email"
)

// EncodeRequest returns the document form of r
func EncodeRequest(r model.FriendRequest) remote.Data {
	d := remote.Data{
		FieldVersion:     Version,
		RequestFromUID:   r.FromUID,
		RequestToUID:     r.ToUID,
		RequestFromEmail: r.FromEmail,
		RequestToEmail:   r.ToEmail,
		RequestFromName:  r.FromName,
		RequestToName:    r.ToName,
		RequestSentAt:    formatTime(r.SentAt),
		RequestAccepted:  r.Accepted,
		RequestResolved:  r.Resolved,
	}
	putTime(d, RequestResolvedAt, r.ResolvedAt)
	return d
}

// DecodeRequest builds a friend request from a document
func DecodeRequest(doc remote.Document) (model.FriendRequest, error) {
	d := doc.Data

	r := model.FriendRequest{RemoteID: doc.ID}
	for key, dst := range map[string]*string{
		RequestFromUID:   &r.FromUID,
		RequestToUID:     &r.ToUID,
		RequestFromEmail: &r.FromEmail,
		RequestToEmail:   &r.ToEmail,
	} {
		s, ok := getString(d, key)
		if !ok || s == "" {
			return model.FriendRequest{}, missing(key)
		}
		*dst = s
	}
	r.FromName, _ = getString(d, RequestFromName)
	r.ToName, _ = getString(d, RequestToName)
	r.Accepted = getBool(d, RequestAccepted, false)
	r.Resolved = getBool(d, RequestResolved, false)

	sent, ok, err := getTime(d, RequestSentAt)
	if err != nil {
		return model.FriendRequest{}, err
	}
	if ok {
		r.SentAt = sent
	}
	if r.ResolvedAt, err = getOptionalTime(d, RequestResolvedAt); err != nil {
		return model.FriendRequest{}, err
	}
	return r, nil
}

// RequestResolution is the patch that resolves a request
func RequestResolution(accepted bool, now time.Time) remote.Data {
	return remote.Data{
		RequestAccepted:   accepted,
		RequestResolved:   true,
		RequestResolvedAt: formatTime(now),
	}
}

// FriendEntry is one element of a user's friends collection
type FriendEntry struct {
	UID     string
	Email   string
	AddedAt time.Time
	Status  string
}

// EncodeFriend returns the document form of a friend entry
func EncodeFriend(f FriendEntry) remote.Data {
	status := f.Status
	if status == "" {
		status = StatusActive
	}
	return remote.Data{
		FieldVersion:  Version,
		FriendUID:     f.UID,
		FriendEmail:   f.Email,
		FriendAddedAt: formatTime(f.AddedAt),
		FriendStatus:  status,
	}
}

// DecodeFriend reads a friend entry. A missing status counts as active.
func DecodeFriend(doc remote.Document) (FriendEntry, error) {
	d := doc.Data

	uid, ok := getString(d, FriendUID)
	if !ok || uid == "" {
		return FriendEntry{}, missing(FriendUID)
	}
	email, ok := getString(d, FriendEmail)
	if !ok || email == "" {
		return FriendEntry{}, missing(FriendEmail)
	}

	f := FriendEntry{UID: uid, Email: email, Status: StatusActive}
	if s, ok := getString(d, FriendStatus); ok && s != "" {
		f.Status = s
	}
	if added, ok, _ := getTime(d, FriendAddedAt); ok {
		f.AddedAt = added
	}
	return f, nil
}

// Profile is the public part of a user document
type Profile struct {
	UID   string
	Name  string
	Email string
}

// EncodeProfile returns the document form of a profile. The email is
// stored lowercased so lookups can match it exactly.
func EncodeProfile(p Profile) remote.Data {
	return remote.Data{
		ProfileName:  p.Name,
		ProfileEmail: strings.ToLower(strings.TrimSpace(p.Email)),
	}
}

// DecodeProfile reads a user document. A missing name falls back to
// session.DefaultDisplayName.
func DecodeProfile(doc remote.Document) (Profile, error) {
	email, ok := getString(doc.Data, ProfileEmail)
	if !ok || email == "" {
		return Profile{}, missing(ProfileEmail)
	}
	name, _ := getString(doc.Data, ProfileName)
	if strings.TrimSpace(name) == "" {
		name = session.DefaultDisplayName
	}
	return Profile{UID: doc.ID, Name: name, Email: email}, nil
}
