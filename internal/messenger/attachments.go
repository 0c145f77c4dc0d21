package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/storage"
	"github.com/nextlevelbuilder/messenger/internal/store"
)

// AttachmentInput describes an image, document or audio message.
type AttachmentInput struct {
	Type        int
	Actor       store.Provider
	Thread      *store.ThreadData
	File        storage.File
	ReplyToID   *uuid.UUID
	Extra       map[string]any
	TemporaryID string
	SenderIP    string
	Silent      bool
}

type attachmentRules struct {
	field    string
	enabled  bool
	disabled string
	exts     []string
	maxKB    int
}

func (m *Messenger) attachmentRules(typ int) (attachmentRules, error) {
	f := m.features()
	switch typ {
	case store.MessageImage:
		return attachmentRules{"image", f.MessageImageUpload, "Image messages are currently disabled.", m.cfg.Storage.ImageMimes, m.cfg.Limits.ImageSizeKB}, nil
	case store.MessageDocument:
		return attachmentRules{"document", f.MessageDocumentUpload, "Document messages are currently disabled.", m.cfg.Storage.DocumentMimes, m.cfg.Limits.DocumentSizeKB}, nil
	case store.MessageAudio:
		return attachmentRules{"audio", f.MessageAudioUpload, "Audio messages are currently disabled.", m.cfg.Storage.AudioMimes, m.cfg.Limits.AudioSizeKB}, nil
	}
	return attachmentRules{}, fmt.Errorf("message type %d has no attachment", typ)
}

// checkAttachmentEnabled returns the rules for typ, or a
// FeatureDisabledError when that upload type is switched off.
func (m *Messenger) checkAttachmentEnabled(typ int) (attachmentRules, error) {
	rules, err := m.attachmentRules(typ)
	if err != nil {
		return attachmentRules{}, err
	}
	if !rules.enabled {
		return attachmentRules{}, &FeatureDisabledError{Feature: rules.field, Msg: rules.disabled}
	}
	return rules, nil
}

// StoreAttachment validates and uploads the file, then persists a message
// whose body is the stored file name. The upload is removed again if the
// message cannot be stored.
func (m *Messenger) StoreAttachment(ctx context.Context, in AttachmentInput) (*Result[*store.MessageData], error) {
	rules, err := m.checkAttachmentEnabled(in.Type)
	if err != nil {
		return nil, err
	}
	if m.uploader == nil {
		return nil, fmt.Errorf("no attachment storage configured")
	}

	verr := &ValidationError{}
	if in.File.Reader == nil || in.File.Name == "" {
		verr.Add(rules.field, fmt.Sprintf("The %s field is required.", rules.field))
		return nil, verr
	}
	if len(rules.exts) > 0 && !slices.Contains(rules.exts, in.File.Ext()) {
		verr.Add(rules.field, fmt.Sprintf("The %s must be a file of type: %s.", rules.field, strings.Join(rules.exts, ", ")))
	}
	if rules.maxKB > 0 && in.File.Size > int64(rules.maxKB)*1024 {
		verr.Add(rules.field, fmt.Sprintf("The %s must not be greater than %s.", rules.field, humanize.IBytes(uint64(rules.maxKB)*1024)))
	}
	if !verr.Empty() {
		return nil, verr
	}

	dir := path.Join(m.cfg.Storage.ThreadsDirectory, in.Thread.ID.String(), store.AttachmentDir(in.Type))
	name, err := m.uploader.Upload(ctx, dir, in.File)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", rules.field, err)
	}

	msg, err := m.newMessage(ctx, in.Actor, in.Thread, in.Type, name, in.ReplyToID, in.Extra)
	if err == nil {
		msg.TemporaryID = in.TemporaryID
		var res *Result[*store.MessageData]
		if res, err = m.persist(ctx, in.Thread, msg, in.SenderIP, in.Silent); err == nil {
			return res, nil
		}
	}
	if derr := m.uploader.Delete(ctx, dir, name); derr != nil {
		slog.Warn("messenger.attachment.cleanup_failed", "dir", dir, "name", name, "error", derr)
	}
	return nil, err
}
