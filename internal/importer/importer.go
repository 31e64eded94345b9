// Package importer loads historical data from CSV exports into the store:
// reports, chat sessions, messages, and the inspector roster. Each loader is
// keyed by the row's identifier column and upserts, so re-running an import
// is safe. A bad row is logged and skipped, never fatal; one malformed line
// must not abort a multi-thousand-row load.
package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/visionary-ai/go-report-backend/internal/domain"
	"github.com/visionary-ai/go-report-backend/internal/repo"
)

// Importer loads CSV exports into the store.
type Importer struct {
	DB *gorm.DB
}

// Result summarizes one loader run.
type Result struct {
	Imported int
	Skipped  int
}

// timeLayouts are the timestamp formats the exports have been seen to carry.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// rows reads a headered CSV into one map per record. Short rows are padded
// so optional trailing columns read as empty.
func rows(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	var out []map[string]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			} else {
				row[name] = ""
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// ImportReports loads the reports export. Rows without an id are skipped.
func (im *Importer) ImportReports(ctx context.Context, r io.Reader) (*Result, error) {
	records, err := rows(r)
	if err != nil {
		return nil, err
	}
	log := zerolog.Ctx(ctx)
	res := &Result{}
	for _, row := range records {
		id := strings.TrimSpace(row["id"])
		if id == "" {
			res.Skipped++
			continue
		}
		rep := &domain.Report{
			ID:          id,
			Title:       row["title"],
			Description: row["description"],
			Date:        row["date"],
			Status:      row["status"],
			Type:        row["type"],
			Priority:    row["priority"],
			Agent:       row["agent"],
			ChatID:      row["chat_id"],
		}
		if t, ok := parseTime(row["submitted_at"]); ok {
			rep.SubmittedAt = &t
		}
		if err := repo.PutReport(ctx, im.DB, rep); err != nil {
			log.Error().Err(err).Str("report_id", id).Msg("import report failed")
			res.Skipped++
			continue
		}
		res.Imported++
	}
	return res, nil
}

// ImportChats loads the chat session export, keyed by chat_id.
func (im *Importer) ImportChats(ctx context.Context, r io.Reader) (*Result, error) {
	records, err := rows(r)
	if err != nil {
		return nil, err
	}
	log := zerolog.Ctx(ctx)
	res := &Result{}
	for _, row := range records {
		id := strings.TrimSpace(row["chat_id"])
		if id == "" {
			res.Skipped++
			continue
		}
		sess := &domain.ChatSession{
			ID:          id,
			LastMessage: row["last_message"],
		}
		if rid := strings.TrimSpace(row["report_id"]); rid != "" {
			sess.ReportID = &rid
		}
		if t, ok := parseTime(row["last_message_time"]); ok {
			sess.LastMessageTime = t
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(row["message_count"]), 10, 64); err == nil {
			sess.MessageCount = n
		}
		if t, ok := parseTime(row["created_at"]); ok {
			sess.CreatedAt = t
		}
		if err := repo.PutChatSession(ctx, im.DB, sess); err != nil {
			log.Error().Err(err).Str("chat_id", id).Msg("import chat failed")
			res.Skipped++
			continue
		}
		res.Imported++
	}
	return res, nil
}

// parseImages decodes the export's images column. The exporter double-quotes
// the embedded JSON, so escaped quotes and wrapping quotes are stripped
// first. Unparseable values degrade to no attachments.
func parseImages(raw string) domain.ImageRefs {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	clean := strings.ReplaceAll(raw, `\"`, `"`)
	clean = strings.Trim(clean, `"`)
	var refs domain.ImageRefs
	if err := json.Unmarshal([]byte(clean), &refs); err != nil {
		return nil
	}
	return refs
}

// ImportMessages loads the message export, keyed by message_id.
func (im *Importer) ImportMessages(ctx context.Context, r io.Reader) (*Result, error) {
	records, err := rows(r)
	if err != nil {
		return nil, err
	}
	log := zerolog.Ctx(ctx)
	res := &Result{}
	for _, row := range records {
		id := strings.TrimSpace(row["message_id"])
		if id == "" {
			res.Skipped++
			continue
		}
		msg := &domain.Message{
			ID:     id,
			ChatID: row["chat_id"],
			Text:   row["text"],
			Sender: row["sender"],
			Images: parseImages(row["images"]),
		}
		if t, ok := parseTime(row["timestamp"]); ok {
			msg.Timestamp = t
		}
		if err := repo.PutMessage(ctx, im.DB, msg); err != nil {
			log.Error().Err(err).Str("message_id", id).Msg("import message failed")
			res.Skipped++
			continue
		}
		res.Imported++
	}
	return res, nil
}

// ImportInspectors loads the inspector assignment roster. The export uses
// human-readable header names.
func (im *Importer) ImportInspectors(ctx context.Context, r io.Reader) (*Result, error) {
	records, err := rows(r)
	if err != nil {
		return nil, err
	}
	log := zerolog.Ctx(ctx)
	res := &Result{}
	for _, row := range records {
		id := strings.TrimSpace(row["Inspector ID"])
		if id == "" {
			res.Skipped++
			continue
		}
		ins := &domain.Inspector{
			ID:             id,
			Name:           row["Inspector Name"],
			AircraftID:     row["Aircraft ID"],
			DateAssigned:   row["Date Assigned"],
			Shift:          row["Shift"],
			InspectionZone: row["Inspection Zone"],
			Location:       row["Location"],
		}
		if err := repo.PutInspector(ctx, im.DB, ins); err != nil {
			log.Error().Err(err).Str("inspector_id", id).Msg("import inspector failed")
			res.Skipped++
			continue
		}
		res.Imported++
	}
	return res, nil
}
