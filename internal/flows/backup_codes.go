package flows

import (
	"context"

	"github.com/MrEthical07/authcore/password"
)

// BackupCodeMetrics carries metric IDs touched by the backup-code flows.
type BackupCodeMetrics struct {
	BackupCodeUsed        int
	BackupCodeFailed      int
	BackupCodeRegenerated int
}

// BackupCodeErrors carries host-level sentinel errors.
type BackupCodeErrors struct {
	EngineNotReady        error
	BackupCodeUnavailable error
	BackupCodeInvalid     error
}

// BackupCodeDeps captures backup-code dependencies. The host builds it once
// and passes it by value.
type BackupCodeDeps struct {
	BackupCodeCount  int
	BackupCodeLength int

	ReplaceBackupCodes func(ctx context.Context, userID string, hashes []string) error
	ConsumeBackupCode  func(ctx context.Context, userID, hash string) (bool, error)
	RandomIndex        func(int) (int, error)

	MetricInc func(int)
	// EmitGenerated is called once per successful batch.
	EmitGenerated func(ctx context.Context, userID string, count int)

	Metrics BackupCodeMetrics
	Errors  BackupCodeErrors
}

// RunGenerateBackupCodes creates a fresh batch for userID, replacing every
// previous code, and returns the display-formatted plaintext codes.
func RunGenerateBackupCodes(ctx context.Context, userID string, deps BackupCodeDeps) ([]string, error) {
	normalizeBackupCodeDeps(&deps)

	if deps.ReplaceBackupCodes == nil {
		return nil, deps.Errors.EngineNotReady
	}
	count := deps.BackupCodeCount
	length := deps.BackupCodeLength
	if userID == "" || count <= 0 || length <= 0 {
		return nil, deps.Errors.BackupCodeUnavailable
	}

	hashes := make([]string, 0, count)
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw, err := password.NewBackupCode(length, deps.RandomIndex)
		if err != nil {
			return nil, deps.Errors.BackupCodeUnavailable
		}
		hashes = append(hashes, password.HashBackupCode(userID, password.CanonicalizeBackupCode(raw)))
		codes = append(codes, password.FormatBackupCode(raw))
	}

	if err := deps.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, deps.Errors.BackupCodeUnavailable
	}

	deps.MetricInc(deps.Metrics.BackupCodeRegenerated)
	deps.EmitGenerated(ctx, userID, count)
	return codes, nil
}

// RunConsumeBackupCode marks one matching unused code as used. A blank or
// unknown code returns Errors.BackupCodeInvalid; a store fault returns
// Errors.BackupCodeUnavailable.
func RunConsumeBackupCode(ctx context.Context, userID, code string, deps BackupCodeDeps) error {
	normalizeBackupCodeDeps(&deps)

	if deps.ConsumeBackupCode == nil {
		return deps.Errors.EngineNotReady
	}

	canonical := password.CanonicalizeBackupCode(code)
	if canonical == "" || userID == "" {
		deps.MetricInc(deps.Metrics.BackupCodeFailed)
		return deps.Errors.BackupCodeInvalid
	}

	ok, err := deps.ConsumeBackupCode(ctx, userID, password.HashBackupCode(userID, canonical))
	if err != nil {
		return deps.Errors.BackupCodeUnavailable
	}
	if !ok {
		deps.MetricInc(deps.Metrics.BackupCodeFailed)
		return deps.Errors.BackupCodeInvalid
	}

	deps.MetricInc(deps.Metrics.BackupCodeUsed)
	return nil
}

func normalizeBackupCodeDeps(deps *BackupCodeDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitGenerated == nil {
		deps.EmitGenerated = func(context.Context, string, int) {}
	}
	if deps.RandomIndex == nil {
		deps.RandomIndex = password.RandomIndex
	}
}
