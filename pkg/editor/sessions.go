// pkg/editor/sessions.go
package editor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
	"github.com/David-Botos/parquet-editor/pkg/session"
)

// OpenSession starts an edit session against the file at path
func (s *Service) OpenSession(path string) (*session.Session, error) {
	ref, err := locator.Parse(path)
	if err != nil {
		return nil, newError(ErrInvalidRequest, "open session", path, err)
	}

	sess := session.New(ref)
	s.metrics.setSessions(s.sessions.add(sess))
	s.logger.Info("Opened session",
		zap.String("sessionID", sess.ID),
		zap.String("source", ref.Path))
	return sess, nil
}

// Session returns the open session with the given ID
func (s *Service) Session(id string) (*session.Session, error) {
	sess, ok := s.sessions.get(id)
	if !ok {
		return nil, newError(ErrSessionNotFound, "get session", "", nil)
	}
	return sess, nil
}

// Sessions lists the open sessions, oldest first
func (s *Service) Sessions() []SessionInfo {
	list := s.sessions.list()
	infos := make([]SessionInfo, len(list))
	for i, sess := range list {
		infos[i] = sessionInfo(sess)
	}
	return infos
}

// CloseSession discards a session and its ledger
func (s *Service) CloseSession(id string) error {
	ok, n := s.sessions.remove(id)
	if !ok {
		return newError(ErrSessionNotFound, "close session", "", nil)
	}
	s.metrics.setSessions(n)
	s.logger.Info("Closed session", zap.String("sessionID", id))
	return nil
}

// ApplyEdits records an edit set in a session's ledger. Cell edits that start
// a new ledger entry without an original value get it from the source file.
func (s *Service) ApplyEdits(ctx context.Context, id string, set model.EditSet) (SessionInfo, error) {
	const op = "apply edits"

	sess, err := s.Session(id)
	if err != nil {
		return SessionInfo{}, err
	}
	source := sess.Source()
	if err := s.validate.Struct(set); err != nil {
		return SessionInfo{}, newError(ErrInvalidRequest, op, source.Path, err)
	}

	set.CellEdits, err = s.readOriginals(ctx, source, set.CellEdits, sess.HasCellEdit)
	if err != nil {
		return SessionInfo{}, s.readError(ctx, op, source, err)
	}
	if err := sess.Apply(set); err != nil {
		return SessionInfo{}, newError(kindOf(err), op, sess.Source().Path, err)
	}
	return sessionInfo(sess), nil
}

// SelectSource points a session at a different file, clearing its ledger
func (s *Service) SelectSource(id, path string) (SessionInfo, error) {
	const op = "select source"

	sess, err := s.Session(id)
	if err != nil {
		return SessionInfo{}, err
	}
	ref, err := locator.Parse(path)
	if err != nil {
		return SessionInfo{}, newError(ErrInvalidRequest, op, path, err)
	}
	sess.Select(ref)
	s.logger.Info("Selected source",
		zap.String("sessionID", id),
		zap.String("source", ref.Path))
	return sessionInfo(sess), nil
}

// PreviewSession compiles a session's ledger without executing it
func (s *Service) PreviewSession(ctx context.Context, id, destination, compression string) (*Preview, error) {
	const op = "preview session"

	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot()
	job, err := s.newJob(op, snap.Source, destination, compression)
	if err != nil {
		return nil, err
	}
	return s.preview(ctx, op, job.WithSession(id), snap)
}

// CommitSession materializes a snapshot of a session's ledger. On success the
// committed entries are cleared; edits recorded while the commit ran stay.
// On failure the ledger is left exactly as it was.
func (s *Service) CommitSession(ctx context.Context, id, destination, compression string) (*CommitResult, error) {
	const op = "commit session"

	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot()
	job, err := s.newJob(op, snap.Source, destination, compression)
	if err != nil {
		s.metrics.recordCommit(nil, err)
		return nil, err
	}

	result, err := s.commit(ctx, op, job.WithSession(id), snap)
	if err != nil {
		return result, err
	}
	cleared := sess.ClearCommitted(snap)
	if remaining := sess.Len(); remaining > 0 {
		s.logger.Info("Kept edits recorded during commit",
			zap.String("sessionID", id),
			zap.Int("cleared", cleared),
			zap.Int("remaining", remaining))
	}
	return result, nil
}

// PruneSessions closes sessions idle for longer than maxIdle
func (s *Service) PruneSessions(maxIdle time.Duration) int {
	removed, n := s.sessions.prune(time.Now().Add(-maxIdle))
	s.metrics.setSessions(n)
	if len(removed) > 0 {
		s.logger.Info("Pruned idle sessions",
			zap.Strings("sessionIDs", removed),
			zap.Duration("maxIdle", maxIdle))
	}
	return len(removed)
}

func sessionInfo(sess *session.Session) SessionInfo {
	return SessionInfo{
		ID:        sess.ID,
		Source:    sess.Source().Path,
		Edits:     sess.Len(),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt(),
	}
}
