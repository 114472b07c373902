package seo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"unicode"
)

// archiveStamp is the timestamp layout used in archive blob names.
const archiveStamp = "20060102T150405Z"

// ErrNoArchive is returned when an archive operation runs without an archive.
var ErrNoArchive = errors.New("no archive configured")

// ErrEncryptedDocument is returned when an encrypted document is read
// without a DecryptionContext.
var ErrEncryptedDocument = errors.New("document is encrypted")

// ExportService writes redirect CSVs, snapshot documents and database
// backups, optionally storing them in an Archive.
type ExportService struct {
	redirects *RedirectService
	history   *HistoryService
	archive   Archive
	encryptor Encryptor
	clock     Clock
	siteID    string
	logger    Logger
}

// NewExportService creates an ExportService. archive and encryptor may be nil,
// in which case archiving or encrypting fails with an error.
func NewExportService(redirects *RedirectService, history *HistoryService, archive Archive, encryptor Encryptor, clock Clock, siteID string, logger Logger) *ExportService {
	return &ExportService{
		redirects: redirects,
		history:   history,
		archive:   archive,
		encryptor: encryptor,
		clock:     clock,
		siteID:    siteID,
		logger:    WithComponent(logger, "exports"),
	}
}

// ArchiveRedirectsCSV exports every redirect and stores the CSV under
// redirects/<site>/<timestamp>.csv.
func (s *ExportService) ArchiveRedirectsCSV(ctx context.Context) (name string, rows int, err error) {
	if s.archive == nil {
		return "", 0, ErrNoArchive
	}
	var buf bytes.Buffer
	rows, err = s.redirects.ExportCSV(ctx, &buf)
	if err != nil {
		return "", 0, err
	}

	name = path.Join("redirects", s.siteID, s.clock.Now().UTC().Format(archiveStamp)+".csv")
	if err := s.archive.Put(ctx, name, &buf, int64(buf.Len())); err != nil {
		return "", 0, fmt.Errorf("archiving redirects csv: %w", err)
	}
	s.logger.Info("redirects archived", "name", name, "rows", rows)
	return name, rows, nil
}

// WriteSnapshot writes the export document of a snapshot to w, encrypted
// when encrypt is set.
func (s *ExportService) WriteSnapshot(ctx context.Context, w io.Writer, snapshotID int64, encrypt bool) (*ExportDocument, error) {
	doc, err := s.history.Export(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if !encrypt {
		return doc, WriteExportDocument(w, doc)
	}
	if s.encryptor == nil {
		return nil, errors.New("no encryptor configured")
	}

	var plain bytes.Buffer
	if err := WriteExportDocument(&plain, doc); err != nil {
		return nil, err
	}
	if err := s.encryptor.Encrypt(&plain, w); err != nil {
		return nil, fmt.Errorf("encrypting export document: %w", err)
	}
	return doc, nil
}

// ArchiveSnapshot exports a snapshot into the archive under
// history/<site>/post-<id>/v<version>-<timestamp>.json, with an ".age"
// suffix when encrypted.
func (s *ExportService) ArchiveSnapshot(ctx context.Context, snapshotID int64, encrypt bool) (string, error) {
	if s.archive == nil {
		return "", ErrNoArchive
	}
	var buf bytes.Buffer
	doc, err := s.WriteSnapshot(ctx, &buf, snapshotID, encrypt)
	if err != nil {
		return "", err
	}

	file := fmt.Sprintf("v%d-%s.json", doc.Version, s.clock.Now().UTC().Format(archiveStamp))
	if encrypt {
		file += ".age"
	}
	name := path.Join("history", s.siteID, fmt.Sprintf("post-%d", doc.PostID), file)
	if err := s.archive.Put(ctx, name, &buf, int64(buf.Len())); err != nil {
		return "", fmt.Errorf("archiving snapshot %d: %w", snapshotID, err)
	}
	s.logger.Info("snapshot archived", "name", name, "snapshot_id", snapshotID)
	return name, nil
}

// FetchArchived copies an archived blob to w.
func (s *ExportService) FetchArchived(ctx context.Context, name string, w io.Writer) error {
	if s.archive == nil {
		return ErrNoArchive
	}
	return s.archive.Get(ctx, name, w)
}

// ArchiveBackup stores a database backup under backups/<site>/<timestamp>.db.
func (s *ExportService) ArchiveBackup(ctx context.Context, r io.Reader, size int64) (string, error) {
	if s.archive == nil {
		return "", ErrNoArchive
	}
	name := path.Join("backups", s.siteID, s.clock.Now().UTC().Format(archiveStamp)+".db")
	if err := s.archive.Put(ctx, name, r, size); err != nil {
		return "", fmt.Errorf("archiving database backup: %w", err)
	}
	s.logger.Info("database backup archived", "name", name, "bytes", size)
	return name, nil
}

// ReadDocument decodes an export document. Documents not starting with a
// JSON object are treated as encrypted and need dec.
func ReadDocument(r io.Reader, dec DecryptionContext) (*ExportDocument, error) {
	br := bufio.NewReader(r)
	encrypted, err := looksEncrypted(br)
	if err != nil {
		return nil, err
	}
	if !encrypted {
		return ReadExportDocument(br)
	}
	if dec == nil {
		return nil, ErrEncryptedDocument
	}

	var plain bytes.Buffer
	if err := dec.Decrypt(br, &plain); err != nil {
		return nil, fmt.Errorf("decrypting document: %w", err)
	}
	return ReadExportDocument(&plain)
}

// IsEncryptedDocument reports whether data looks like an encrypted document.
func IsEncryptedDocument(data []byte) bool {
	encrypted, _ := looksEncrypted(bufio.NewReader(bytes.NewReader(data)))
	return encrypted
}

func looksEncrypted(br *bufio.Reader) (bool, error) {
	for {
		r, _, err := br.ReadRune()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("reading document: %w", err)
		}
		if unicode.IsSpace(r) || r == '\uFEFF' {
			continue
		}
		if err := br.UnreadRune(); err != nil {
			return false, err
		}
		return r != '{', nil
	}
}
