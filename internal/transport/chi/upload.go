package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/kailas-cloud/asynccts/internal/domain"
	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
	domsearch "github.com/kailas-cloud/asynccts/internal/domain/search"
)

var errBadMultipart = errors.New("malformed multipart request")

func decodeArtifact(r io.Reader) (artifactRequest, error) {
	var meta artifactRequest
	if err := json.NewDecoder(r).Decode(&meta); err != nil {
		return artifactRequest{}, err
	}
	return meta, nil
}

// readMultipart reads the artifact part and streams the optional attachment
// part into the upload directory. The caller owns the returned attachment.
func (s *Server) readMultipart(r *http.Request) (domsearch.Request, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return domsearch.Request{}, fmt.Errorf("%w: %w", errBadMultipart, err)
	}

	metaPart, err := mr.NextPart()
	if err != nil {
		return domsearch.Request{}, fmt.Errorf("%w: missing artifact part: %w", errBadMultipart, err)
	}
	meta, err := decodeArtifact(io.LimitReader(metaPart, maxMetadataSize))
	_ = metaPart.Close()
	if err != nil {
		return domsearch.Request{}, fmt.Errorf("%w: artifact part: %w", errBadMultipart, err)
	}
	req := domsearch.Request{Artifact: artifact.New(meta.Type, meta.Value)}

	filePart, err := mr.NextPart()
	if errors.Is(err, io.EOF) {
		return req, nil
	}
	if err != nil {
		return domsearch.Request{}, fmt.Errorf("%w: attachment part: %w", errBadMultipart, err)
	}
	defer filePart.Close()

	a, err := spool(filePart, s.uploads.Dir, s.uploads.MaxSize)
	if err != nil {
		return domsearch.Request{}, err
	}
	a.Name = filePart.FileName()
	a.TransferEncoding = filePart.Header.Get("Content-Transfer-Encoding")

	if _, err := mr.NextPart(); !errors.Is(err, io.EOF) {
		_ = a.Release()
		return domsearch.Request{}, fmt.Errorf("%w: unexpected extra part", errBadMultipart)
	}

	req.Attachment = a
	return req, nil
}

// spool copies src into a new file under dir, aborting once more than limit
// bytes arrive. limit <= 0 means no limit.
func spool(src io.Reader, dir string, limit int64) (*domsearch.Attachment, error) {
	f, err := os.CreateTemp(dir, "asynccts-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	a := &domsearch.Attachment{Path: f.Name()}

	reader := src
	if limit > 0 {
		reader = io.LimitReader(src, limit+1)
	}
	n, copyErr := io.Copy(f, reader)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = a.Release()
		return nil, fmt.Errorf("%w: spool attachment: %w", errBadMultipart, copyErr)
	case closeErr != nil:
		_ = a.Release()
		return nil, fmt.Errorf("close upload file: %w", closeErr)
	case limit > 0 && n > limit:
		_ = a.Release()
		return nil, fmt.Errorf("%w: attachment exceeds %d bytes", domain.ErrPayloadTooLarge, limit)
	}

	a.Size = n
	return a, nil
}
