package account_test

import (
	"testing"
	"time"

	"runclub/internal/domain/account"
)

// TestAccount_Validate tests validation of Account.
func TestAccount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		account account.Account
		wantErr bool
	}{
		{
			name: "valid active account",
			account: account.Account{
				ID:     "1",
				Email:  "admin@runclub.org.uk",
				Status: account.StatusActive,
			},
			wantErr: false,
		},
		{
			name: "valid pending account",
			account: account.Account{
				ID:     "2",
				Email:  "new@runclub.org.uk",
				Status: account.StatusPendingActivation,
			},
			wantErr: false,
		},
		{
			name: "empty email",
			account: account.Account{
				ID:     "3",
				Status: account.StatusActive,
			},
			wantErr: true,
		},
		{
			name: "invalid email no at sign",
			account: account.Account{
				ID:     "4",
				Email:  "not-an-email",
				Status: account.StatusActive,
			},
			wantErr: true,
		},
		{
			name: "unknown status",
			account: account.Account{
				ID:     "5",
				Email:  "user@runclub.org.uk",
				Status: "deleted",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Account.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestAccount_SetPassword tests the SetPassword method.
func TestAccount_SetPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "securepassword123", false},
		{"exactly 12 chars", "123456789012", false},
		{"empty password", "", true},
		{"too short", "short", true},
		{"11 chars", "12345678901", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &account.Account{}
			err := a.SetPassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetPassword() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && a.PasswordHash == "" {
				t.Error("SetPassword() should set PasswordHash")
			}
			if err == nil && a.PasswordHash == tt.password {
				t.Error("SetPassword() should hash the password, not store plaintext")
			}
		})
	}
}

// TestAccount_CheckPassword tests the CheckPassword method.
func TestAccount_CheckPassword(t *testing.T) {
	a := &account.Account{}
	if err := a.SetPassword("securepassword123"); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"correct password", "securepassword123", false},
		{"wrong password", "wrongpassword123", true},
		{"empty password", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.CheckPassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckPassword() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestAccount_CheckPassword_NoHash tests CheckPassword with no hash set.
func TestAccount_CheckPassword_NoHash(t *testing.T) {
	a := &account.Account{}
	if err := a.CheckPassword("anypassword1234"); err == nil {
		t.Error("CheckPassword() should fail when no hash is set")
	}
}

// TestAccount_IsLocked tests the IsLocked method.
func TestAccount_IsLocked(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	t.Run("not locked", func(t *testing.T) {
		a := &account.Account{}
		if a.IsLocked(now) {
			t.Error("new account should not be locked")
		}
	})

	t.Run("locked", func(t *testing.T) {
		a := &account.Account{LockedUntil: now.Add(10 * time.Minute)}
		if !a.IsLocked(now) {
			t.Error("account with future LockedUntil should be locked")
		}
	})

	t.Run("lock expired", func(t *testing.T) {
		a := &account.Account{LockedUntil: now.Add(-1 * time.Minute)}
		if a.IsLocked(now) {
			t.Error("account with past LockedUntil should not be locked")
		}
	})
}

// TestAccount_RecordFailedLogin tests the RecordFailedLogin method.
func TestAccount_RecordFailedLogin(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	a := &account.Account{}

	// First 4 failures should not lock
	for i := 0; i < 4; i++ {
		a.RecordFailedLogin(now)
		if a.IsLocked(now) {
			t.Errorf("account should not be locked after %d failures", i+1)
		}
	}

	a.RecordFailedLogin(now)
	if !a.IsLocked(now) {
		t.Error("account should be locked after 5 failures")
	}
	if a.IsLocked(now.Add(account.LockoutDuration + time.Second)) {
		t.Error("lock should lapse after the lockout duration")
	}
	if a.FailedLogins != 5 {
		t.Errorf("FailedLogins = %d, want 5", a.FailedLogins)
	}
}

// TestAccount_ResetFailedLogins tests the ResetFailedLogins method.
func TestAccount_ResetFailedLogins(t *testing.T) {
	now := time.Now()
	a := &account.Account{
		FailedLogins: 5,
		LockedUntil:  now.Add(15 * time.Minute),
	}

	a.ResetFailedLogins()

	if a.FailedLogins != 0 {
		t.Errorf("FailedLogins = %d, want 0", a.FailedLogins)
	}
	if a.IsLocked(now) {
		t.Error("account should not be locked after reset")
	}
}

// TestAccount_Activate tests the pending to active transition.
func TestAccount_Activate(t *testing.T) {
	a := &account.Account{Status: account.StatusPendingActivation}
	if err := a.Activate(); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if a.Status != account.StatusActive {
		t.Errorf("Status = %q, want active", a.Status)
	}
	if err := a.Activate(); err != account.ErrAlreadyActivated {
		t.Errorf("second Activate() error = %v, want ErrAlreadyActivated", err)
	}
}

// TestNormalizeEmail tests email normalisation.
func TestNormalizeEmail(t *testing.T) {
	if got := account.NormalizeEmail("  Jane.Doe@Example.COM "); got != "jane.doe@example.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}
