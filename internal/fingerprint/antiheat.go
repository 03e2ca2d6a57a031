package fingerprint

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gradeworks/grader-worker/internal/metrics"
)

// MatchedSubmission is one past submission whose similarity cleared the
// reporting threshold.
type MatchedSubmission struct {
	SubmissionID    string   `json:"submission_id"`
	SimilarityScore float64  `json:"similarity_score"`
	MatchedSections []string `json:"matched_sections"`
}

// PlagiarismResult is the outcome of checking one submission against a
// challenge's prior submissions.
type PlagiarismResult struct {
	SimilarityScore    float64             `json:"similarity_score"`
	MatchedSubmissions []MatchedSubmission `json:"matched_submissions"`
	RiskLevel          RiskLevel           `json:"risk_level"`
	AnalysisTimeMS     int64               `json:"analysis_time_ms"`
}

// reportingThreshold is the minimum similarity worth surfacing as a match.
const reportingThreshold = 0.3

// StoredFingerprint pairs a fingerprint with the submission and user that
// produced it, as kept by a SubmissionStore.
type StoredFingerprint struct {
	SubmissionID string
	UserID       string
	Fingerprint  CodeFingerprint
}

// SubmissionStore is the abstract persistence boundary for past
// submissions' fingerprints — the plagiarism subsystem is specified
// against this interface, not a concrete backing store.
type SubmissionStore interface {
	Store(ctx context.Context, challengeID, language, submissionID, userID string, fp CodeFingerprint) error
	MatchCandidates(ctx context.Context, challengeID, language, excludeUserID string) ([]StoredFingerprint, error)
}

// InMemoryStore is a process-local SubmissionStore, sufficient for a single
// worker instance; cross-worker sharing is left to whatever store the
// embedding product wires in.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]StoredFingerprint // keyed by "challengeID:language"
}

// NewInMemoryStore returns an empty in-memory submission store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string][]StoredFingerprint)}
}

func (s *InMemoryStore) key(challengeID, language string) string {
	return challengeID + ":" + strings.ToLower(language)
}

func (s *InMemoryStore) Store(_ context.Context, challengeID, language, submissionID, userID string, fp CodeFingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(challengeID, language)
	s.entries[k] = append(s.entries[k], StoredFingerprint{SubmissionID: submissionID, UserID: userID, Fingerprint: fp})
	return nil
}

func (s *InMemoryStore) MatchCandidates(_ context.Context, challengeID, language, excludeUserID string) ([]StoredFingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := s.key(challengeID, language)
	var out []StoredFingerprint
	for _, e := range s.entries[k] {
		if e.UserID == excludeUserID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// AntiCheatEngine checks fresh submissions for plagiarism against a
// SubmissionStore.
type AntiCheatEngine struct {
	Store SubmissionStore
}

// NewAntiCheatEngine wires an engine to store.
func NewAntiCheatEngine(store SubmissionStore) *AntiCheatEngine {
	return &AntiCheatEngine{Store: store}
}

// CheckPlagiarism fingerprints code, stores it under submissionID/userID,
// and compares it against every other stored submission for the same
// challenge and language (excluding the same user).
func (e *AntiCheatEngine) CheckPlagiarism(ctx context.Context, challengeID, language, code, submissionID, userID string) (PlagiarismResult, error) {
	start := time.Now()

	fp, err := Fingerprint(code, language)
	if err != nil {
		return PlagiarismResult{}, fmt.Errorf("fingerprint submission: %w", err)
	}

	candidates, err := e.Store.MatchCandidates(ctx, challengeID, language, userID)
	if err != nil {
		return PlagiarismResult{}, fmt.Errorf("load match candidates: %w", err)
	}

	var matches []MatchedSubmission
	maxSim := 0.0
	for _, cand := range candidates {
		sim := Similarity(fp, cand.Fingerprint)
		if sim < reportingThreshold {
			continue
		}
		matches = append(matches, MatchedSubmission{
			SubmissionID:    cand.SubmissionID,
			SimilarityScore: sim,
			MatchedSections: []string{"full_code"},
		})
		if sim > maxSim {
			maxSim = sim
		}
	}

	if err := e.Store.Store(ctx, challengeID, language, submissionID, userID, fp); err != nil {
		return PlagiarismResult{}, fmt.Errorf("store submission fingerprint: %w", err)
	}

	risk := assessRiskLevel(maxSim)
	metrics.Get().PlagiarismChecksTotal.WithLabelValues(string(risk)).Inc()

	return PlagiarismResult{
		SimilarityScore:    maxSim,
		MatchedSubmissions: matches,
		RiskLevel:          risk,
		AnalysisTimeMS:     time.Since(start).Milliseconds(),
	}, nil
}
