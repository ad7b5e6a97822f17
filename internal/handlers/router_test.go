package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/notify"
	"github.com/nkiryanov/refledger/internal/repository/postgres"
	"github.com/nkiryanov/refledger/internal/service/account"
	"github.com/nkiryanov/refledger/internal/service/audit"
	"github.com/nkiryanov/refledger/internal/service/auth"
	"github.com/nkiryanov/refledger/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/refledger/internal/service/commission"
	"github.com/nkiryanov/refledger/internal/service/ledger"
	"github.com/nkiryanov/refledger/internal/service/order"
	"github.com/nkiryanov/refledger/internal/service/referral"
	"github.com/nkiryanov/refledger/internal/service/withdrawal"
	"github.com/nkiryanov/refledger/internal/testutil"
)

type apiClient struct {
	t       *testing.T
	url     string
	access  string // admin Authorization header value
	refresh string // admin refresh cookie value
}

// Send request and return status code with response body
func (c *apiClient) do(method string, path string, body string) (int, []byte) {
	c.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(c.t.Context(), method, c.url+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.access != "" {
		req.Header.Set("Authorization", c.access)
	}
	if c.refresh != "" {
		req.AddCookie(&http.Cookie{Name: "refreshtoken", Value: c.refresh})
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	// Keep the session the way a browser would, the cookie is Secure so a jar would drop it over http
	if access := resp.Header.Get("Authorization"); access != "" {
		c.access = access
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == "refreshtoken" {
			c.refresh = ck.Value
		}
	}

	return resp.StatusCode, data
}

// Send request, require expected status and decode response to v
func (c *apiClient) expect(method string, path string, body string, code int, v any) {
	c.t.Helper()

	status, data := c.do(method, path, body)
	require.Equalf(c.t, code, status, "unexpected status of %s %s. Body: %s", method, path, string(data))
	if v != nil {
		require.NoError(c.t, json.Unmarshal(data, v), "response should be valid json")
	}
}

func TestRouter(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run http server with production services bound to the test transaction
	withServer := func(t *testing.T, fn func(c *apiClient)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			l := logger.NewNoOpLogger()
			storage := postgres.NewStorage(tx)

			tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, storage.Refresh())
			require.NoError(t, err)
			authService, err := auth.NewService(auth.Config{Hasher: auth.BcryptHasher{Cost: bcrypt.MinCost}}, tokenManager, storage)
			require.NoError(t, err)
			_, _, err = authService.Bootstrap(t.Context(), "root", "RootPassword123")
			require.NoError(t, err)

			// Commissions mature right away to be withdrawable in tests
			engine := commission.NewEngine(storage, commission.Config{
				Policy: commission.FixedPolicy{Level1: decimal.NewFromInt(600), Level2: decimal.NewFromInt(100)},
				Hold:   time.Nanosecond,
			}, notify.Noop{}, l)

			router := NewRouter(Services{
				Auth:        authService,
				Accounts:    account.NewService(storage, l),
				Referrals:   referral.NewService(storage),
				Orders:      order.NewService(storage, engine, l),
				Ledger:      ledger.NewService(storage),
				Withdrawals: withdrawal.NewService(storage, withdrawal.Config{}, notify.Noop{}, l),
				Commissions: engine,
				Audit:       audit.NewService(storage),
				DB:          tx.Conn(),
			}, l)

			srv := httptest.NewServer(router)
			defer srv.Close()

			fn(&apiClient{t: t, url: srv.URL})
		})
	}

	type accountView struct {
		ExternalID    string `json:"external_id"`
		ReferralCode  string `json:"referral_code"`
		ReferralLevel int    `json:"referral_level"`
		Referred      bool   `json:"referred"`
	}
	type orderView struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	type walletView struct {
		Total        decimal.Decimal `json:"total"`
		Pending      decimal.Decimal `json:"pending"`
		Withdrawable decimal.Decimal `json:"withdrawable"`
		Reserved     decimal.Decimal `json:"reserved"`
	}
	type withdrawalView struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}

	// Log in as the bootstrapped admin
	login := func(c *apiClient) {
		c.expect("POST", "/api/admin/login", `{"login": "root", "password": "RootPassword123"}`, http.StatusOK, nil)
		require.Contains(c.t, c.access, "Bearer ")
	}

	// Register chain 1001 <- 1002 <- 1003 and pay order of 1003
	referralChain := func(c *apiClient) orderView {
		var a, b, cc accountView
		c.expect("POST", "/api/accounts", `{"external_id": "1001", "username": "alice"}`, http.StatusOK, &a)
		c.expect("POST", "/api/accounts", `{"external_id": "1002", "referral_code": "`+a.ReferralCode+`"}`, http.StatusOK, &b)
		c.expect("POST", "/api/accounts", `{"external_id": "1003", "referral_code": "`+b.ReferralCode+`"}`, http.StatusOK, &cc)

		var o orderView
		c.expect("POST", "/api/orders", `{"external_id": "1003", "amount": "999"}`, http.StatusCreated, &o)
		c.expect("POST", "/api/orders/"+o.OrderID+"/payment-success", "", http.StatusOK, &o)
		return o
	}

	t.Run("accounts and referrals", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			var a, b accountView
			c.expect("POST", "/api/accounts", `{"external_id": "1001"}`, http.StatusOK, &a)
			require.Regexp(t, `^REF001001[0-9A-F]{4}$`, a.ReferralCode)
			require.False(t, a.Referred)

			c.expect("POST", "/api/accounts", `{"external_id": "1002", "referral_code": "`+a.ReferralCode+`"}`, http.StatusOK, &b)
			require.True(t, b.Referred)
			require.Equal(t, 1, b.ReferralLevel)

			var again accountView
			c.expect("POST", "/api/accounts", `{"external_id": "1002"}`, http.StatusOK, &again)
			require.Equal(t, b.ReferralCode, again.ReferralCode, "known account is returned as is")

			var got accountView
			c.expect("GET", "/api/accounts/1002", "", http.StatusOK, &got)
			require.Equal(t, b, got)

			var click struct {
				Recorded bool `json:"recorded"`
			}
			c.expect("POST", "/api/referrals/click", `{"referral_code": "`+a.ReferralCode+`"}`, http.StatusOK, &click)
			require.True(t, click.Recorded)
			c.expect("POST", "/api/referrals/click", `{"referral_code": "REF999999FFFF"}`, http.StatusOK, &click)
			require.False(t, click.Recorded, "unknown code is not recorded")

			var stats struct {
				Clicks         int `json:"clicks"`
				TotalReferrals int `json:"total_referrals"`
			}
			c.expect("GET", "/api/accounts/1001/referrals/stats", "", http.StatusOK, &stats)
			require.Equal(t, 1, stats.Clicks)
			require.Equal(t, 1, stats.TotalReferrals)
		})
	})

	t.Run("order pays two level commission", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			o := referralChain(c)
			require.Equal(t, "success", o.Status)

			var wallet walletView
			c.expect("GET", "/api/accounts/1002/wallet", "", http.StatusOK, &wallet)
			testutil.RequireMoney(t, "600", wallet.Pending, "level 1 commission is pending")
			c.expect("GET", "/api/accounts/1001/wallet", "", http.StatusOK, &wallet)
			testutil.RequireMoney(t, "100", wallet.Pending, "level 2 commission is pending")

			// Repeated payment webhook changes nothing
			c.expect("POST", "/api/orders/"+o.OrderID+"/payment-success", "", http.StatusOK, nil)
			c.expect("GET", "/api/accounts/1002/wallet", "", http.StatusOK, &wallet)
			testutil.RequireMoney(t, "600", wallet.Total, "commission credited once")

			var stats struct {
				Buyers         int             `json:"buyers"`
				ConversionRate decimal.Decimal `json:"conversion_rate"`
				CommissionHeld decimal.Decimal `json:"commission_held"`
			}
			c.expect("GET", "/api/accounts/1002/referrals/stats", "", http.StatusOK, &stats)
			require.Equal(t, 1, stats.Buyers)
			testutil.RequireMoney(t, "100", stats.ConversionRate, "conversion")
			testutil.RequireMoney(t, "600", stats.CommissionHeld, "held")

			var tree struct {
				ExternalID string `json:"external_id"`
				Referrals  []struct {
					ExternalID string `json:"external_id"`
					Referrals  []struct {
						ExternalID string `json:"external_id"`
					} `json:"referrals"`
				} `json:"referrals"`
			}
			c.expect("GET", "/api/accounts/1001/referrals/tree", "", http.StatusOK, &tree)
			require.Len(t, tree.Referrals, 1)
			require.Equal(t, "1002", tree.Referrals[0].ExternalID)
			require.Len(t, tree.Referrals[0].Referrals, 1)
			require.Equal(t, "1003", tree.Referrals[0].Referrals[0].ExternalID)

			var history []struct {
				Kind          string `json:"kind"`
				Status        string `json:"status"`
				ReferralLevel *int   `json:"referral_level"`
			}
			c.expect("GET", "/api/accounts/1001/wallet/transactions?kind=commission_credit", "", http.StatusOK, &history)
			require.Len(t, history, 1)
			require.Equal(t, "pending", history[0].Status)
			require.Equal(t, 2, *history[0].ReferralLevel)

			var leaderboard []struct {
				Rank       int    `json:"rank"`
				ExternalID string `json:"external_id"`
			}
			c.expect("GET", "/api/referrals/leaderboard?limit=5", "", http.StatusOK, &leaderboard)
			require.Len(t, leaderboard, 2)
			require.Equal(t, "1002", leaderboard[0].ExternalID)
		})
	})

	t.Run("withdrawal lifecycle", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			referralChain(c)
			login(c)

			var report struct {
				Released int `json:"released"`
			}
			c.expect("POST", "/api/admin/release", "", http.StatusOK, &report)
			require.Equal(t, 2, report.Released)

			var wr withdrawalView
			c.expect("POST", "/api/accounts/1002/withdrawals", `{"amount": "500", "method": "upi", "upi_id": "bob@upi"}`, http.StatusCreated, &wr)
			require.Equal(t, "pending", wr.Status)

			var wallet walletView
			c.expect("GET", "/api/accounts/1002/wallet", "", http.StatusOK, &wallet)
			testutil.RequireMoney(t, "100", wallet.Withdrawable, "withdrawable after reservation")
			testutil.RequireMoney(t, "500", wallet.Reserved, "reserved")

			status, _ := c.do("POST", "/api/accounts/1002/withdrawals", `{"amount": "500", "method": "upi", "upi_id": "bob@upi"}`)
			require.Equal(t, http.StatusConflict, status, "only one pending request")

			var pending []withdrawalView
			c.expect("GET", "/api/admin/withdrawals?status=pending", "", http.StatusOK, &pending)
			require.Len(t, pending, 1)
			require.Equal(t, wr.ID, pending[0].ID)

			c.expect("POST", "/api/admin/withdrawals/"+wr.ID+"/approve", `{}`, http.StatusOK, &wr)
			require.Equal(t, "approved", wr.Status)
			c.expect("POST", "/api/admin/withdrawals/"+wr.ID+"/paid", `{"payment_reference": "UTR123"}`, http.StatusOK, &wr)
			require.Equal(t, "paid", wr.Status)

			c.expect("GET", "/api/accounts/1002/wallet", "", http.StatusOK, &wallet)
			testutil.RequireMoney(t, "100", wallet.Total, "total after payout")
			testutil.RequireMoney(t, "0", wallet.Reserved, "reserved after payout")

			status, _ = c.do("POST", "/api/admin/withdrawals/"+wr.ID+"/reject", `{"reason": "late"}`)
			require.Equal(t, http.StatusConflict, status, "paid request can't be rejected")

			var stats []struct {
				Status string `json:"status"`
				Count  int    `json:"count"`
			}
			c.expect("GET", "/api/admin/withdrawals/statistics", "", http.StatusOK, &stats)
			require.Len(t, stats, 1)
			require.Equal(t, "paid", stats[0].Status)

			var own []withdrawalView
			c.expect("GET", "/api/accounts/1002/withdrawals", "", http.StatusOK, &own)
			require.Len(t, own, 1)

			var rec struct {
				InSync bool `json:"in_sync"`
			}
			c.expect("GET", "/api/admin/accounts/1002/reconcile", "", http.StatusOK, &rec)
			require.True(t, rec.InSync, "wallet must match ledger")
		})
	})

	t.Run("cancel and reject restore funds", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			referralChain(c)
			login(c)
			c.expect("POST", "/api/admin/release", "", http.StatusOK, nil)

			var wr withdrawalView
			c.expect("POST", "/api/accounts/1002/withdrawals", `{"amount": "600", "method": "bank", "bank_account": "123", "ifsc_code": "SBIN0000001", "account_holder_name": "Bob"}`, http.StatusCreated, &wr)

			status, _ := c.do("POST", "/api/accounts/1001/withdrawals/"+wr.ID+"/cancel", "")
			require.Equal(t, http.StatusNotFound, status, "request of another account is not visible")

			c.expect("POST", "/api/accounts/1002/withdrawals/"+wr.ID+"/cancel", "", http.StatusOK, &wr)
			require.Equal(t, "cancelled", wr.Status)

			c.expect("POST", "/api/accounts/1002/withdrawals", `{"amount": "600", "method": "paytm", "upi_id": "9999999999"}`, http.StatusCreated, &wr)
			c.expect("POST", "/api/admin/withdrawals/"+wr.ID+"/reject", `{"reason": "wrong number"}`, http.StatusOK, &wr)
			require.Equal(t, "rejected", wr.Status)

			var wallet walletView
			c.expect("GET", "/api/accounts/1002/wallet", "", http.StatusOK, &wallet)
			testutil.RequireMoney(t, "600", wallet.Withdrawable, "funds restored")
			testutil.RequireMoney(t, "0", wallet.Reserved, "nothing reserved")
		})
	})

	t.Run("refund reverses commission", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			o := referralChain(c)
			login(c)

			var refund struct {
				Order          orderView       `json:"order"`
				ReversedCount  int             `json:"reversed_count"`
				ReversedAmount decimal.Decimal `json:"reversed_amount"`
			}
			c.expect("POST", "/api/admin/orders/"+o.OrderID+"/refund", "", http.StatusOK, &refund)
			require.Equal(t, "refunded", refund.Order.Status)
			require.Equal(t, 2, refund.ReversedCount)
			testutil.RequireMoney(t, "700", refund.ReversedAmount, "both levels reversed")

			var wallet walletView
			c.expect("GET", "/api/accounts/1002/wallet", "", http.StatusOK, &wallet)
			testutil.RequireMoney(t, "0", wallet.Total, "commission taken back")

			status, _ := c.do("POST", "/api/admin/orders/"+o.OrderID+"/refund", "")
			require.Equal(t, http.StatusConflict, status, "second refund fails")
		})
	})

	t.Run("admin routes require auth", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			for _, path := range []string{"/api/admin/withdrawals", "/api/admin/withdrawals/statistics", "/api/admin/me", "/api/admin/audit-logs", "/api/admin/dashboard/stats"} {
				status, _ := c.do("GET", path, "")
				require.Equal(t, http.StatusUnauthorized, status, path)
			}

			status, _ := c.do("POST", "/api/admin/release", "")
			require.Equal(t, http.StatusUnauthorized, status)

			c.access = "Bearer not-a-token"
			status, _ = c.do("GET", "/api/admin/me", "")
			require.Equal(t, http.StatusUnauthorized, status)
		})
	})

	t.Run("admin login", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			status, body := c.do("POST", "/api/admin/login", `{"login": "root", "password": "wrong"}`)
			require.Equal(t, http.StatusUnauthorized, status)
			require.JSONEq(t, `{"error": "service_error", "message": "Admin not found"}`, string(body))
			require.Empty(t, c.access)

			login(c)
		})
	})

	t.Run("admin registration", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			status, _ := c.do("POST", "/api/admin/register", `{"login": "operator", "password": "StrongEnoughPassword"}`)
			require.Equal(t, http.StatusUnauthorized, status, "anonymous can't create admins")

			login(c)
			var created struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			}
			c.expect("POST", "/api/admin/register", `{"login": "operator", "password": "StrongEnoughPassword"}`, http.StatusCreated, &created)
			require.Equal(t, "operator", created.Username)
			require.NotEmpty(t, created.ID)

			status, _ = c.do("POST", "/api/admin/register", `{"login": "operator", "password": "StrongEnoughPassword"}`)
			require.Equal(t, http.StatusConflict, status)

			// Creating an admin does not switch the session
			var me struct {
				Username string `json:"username"`
			}
			c.expect("GET", "/api/admin/me", "", http.StatusOK, &me)
			require.Equal(t, "root", me.Username)

			other := &apiClient{t: t, url: c.url}
			other.expect("POST", "/api/admin/login", `{"login": "operator", "password": "StrongEnoughPassword"}`, http.StatusOK, nil)
			other.expect("GET", "/api/admin/me", "", http.StatusOK, &me)
			require.Equal(t, "operator", me.Username)

			var actions []struct {
				AdminID  string            `json:"admin_id"`
				Action   string            `json:"action"`
				TargetID string            `json:"target_id"`
				Details  map[string]string `json:"details"`
			}
			c.expect("GET", "/api/admin/audit-logs?action=admin.create", "", http.StatusOK, &actions)
			require.Len(t, actions, 1)
			require.Equal(t, created.ID, actions[0].TargetID)
			require.Equal(t, "operator", actions[0].Details["username"])
		})
	})

	t.Run("admin session lifecycle", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			var loggedIn struct {
				Message         string    `json:"message"`
				AccessExpiresAt time.Time `json:"access_expires_at"`
			}
			c.expect("POST", "/api/admin/login", `{"login": "root", "password": "RootPassword123"}`, http.StatusOK, &loggedIn)
			require.Equal(t, "Admin logged in successfully", loggedIn.Message)
			require.True(t, loggedIn.AccessExpiresAt.After(time.Now()), "access expiry reported")
			require.NotEmpty(t, c.refresh, "refresh cookie set")

			first := c.refresh
			c.expect("POST", "/api/admin/refresh", "", http.StatusOK, nil)
			require.NotEqual(t, first, c.refresh, "refresh rotates the token")
			second := c.refresh

			// Replaying the rotated token ends every session
			c.refresh = first
			status, _ := c.do("POST", "/api/admin/refresh", "")
			require.Equal(t, http.StatusUnauthorized, status)
			c.refresh = second
			status, _ = c.do("POST", "/api/admin/refresh", "")
			require.Equal(t, http.StatusUnauthorized, status, "sibling token revoked by replay")

			login(c)
			session := c.refresh

			var me struct {
				Username string `json:"username"`
			}
			c.expect("GET", "/api/admin/me", "", http.StatusOK, &me)
			require.Equal(t, "root", me.Username)

			c.expect("POST", "/api/admin/logout", "", http.StatusOK, nil)
			require.Empty(t, c.refresh, "cookie cleared")

			c.refresh = session
			status, _ = c.do("POST", "/api/admin/refresh", "")
			require.Equal(t, http.StatusUnauthorized, status, "logout revokes refresh tokens")
		})
	})

	t.Run("payout by another admin without reference", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			referralChain(c)
			login(c)
			c.expect("POST", "/api/admin/register", `{"login": "payer", "password": "StrongEnoughPassword"}`, http.StatusCreated, nil)
			c.expect("POST", "/api/admin/release", "", http.StatusOK, nil)

			var wr struct {
				ID               string  `json:"id"`
				Status           string  `json:"status"`
				ApprovedBy       *string `json:"approved_by"`
				PaymentReference string  `json:"payment_reference"`
			}
			c.expect("POST", "/api/accounts/1002/withdrawals", `{"amount": "600", "method": "upi", "upi_id": "bob@upi"}`, http.StatusCreated, &wr)
			c.expect("POST", "/api/admin/withdrawals/"+wr.ID+"/approve", `{}`, http.StatusOK, &wr)
			require.NotNil(t, wr.ApprovedBy)
			approver := *wr.ApprovedBy

			payer := &apiClient{t: t, url: c.url}
			payer.expect("POST", "/api/admin/login", `{"login": "payer", "password": "StrongEnoughPassword"}`, http.StatusOK, nil)
			payer.expect("POST", "/api/admin/withdrawals/"+wr.ID+"/paid", `{}`, http.StatusOK, &wr)
			require.Equal(t, "paid", wr.Status)
			require.Empty(t, wr.PaymentReference)
			require.NotNil(t, wr.ApprovedBy)
			require.Equal(t, approver, *wr.ApprovedBy, "payout keeps the approver")

			var actions []struct {
				AdminID string `json:"admin_id"`
				Action  string `json:"action"`
			}
			c.expect("GET", "/api/admin/audit-logs?target_id="+wr.ID, "", http.StatusOK, &actions)
			require.Len(t, actions, 2)
			byAction := map[string]string{}
			for _, a := range actions {
				byAction[a.Action] = a.AdminID
			}
			require.Equal(t, approver, byAction["withdrawal.approve"])
			require.NotEmpty(t, byAction["withdrawal.paid"])
			require.NotEqual(t, approver, byAction["withdrawal.paid"], "payer recorded")
		})
	})

	t.Run("audit trail and dashboard", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			o := referralChain(c)
			login(c)
			c.expect("POST", "/api/admin/release", "", http.StatusOK, nil)

			var wr withdrawalView
			c.expect("POST", "/api/accounts/1001/withdrawals", `{"amount": "50", "method": "upi", "upi_id": "alice@upi"}`, http.StatusCreated, &wr)

			var stats struct {
				Accounts                int             `json:"accounts"`
				Buyers                  int             `json:"buyers"`
				ReferredAccounts        int             `json:"referred_accounts"`
				PendingWithdrawals      int             `json:"pending_withdrawals"`
				PendingWithdrawalAmount decimal.Decimal `json:"pending_withdrawal_amount"`
				CommissionPending       decimal.Decimal `json:"commission_pending"`
				CommissionReleased      decimal.Decimal `json:"commission_released"`
				TotalWithdrawn          decimal.Decimal `json:"total_withdrawn"`
			}
			c.expect("GET", "/api/admin/dashboard/stats", "", http.StatusOK, &stats)
			require.Equal(t, 3, stats.Accounts)
			require.Equal(t, 1, stats.Buyers)
			require.Equal(t, 2, stats.ReferredAccounts)
			require.Equal(t, 1, stats.PendingWithdrawals)
			testutil.RequireMoney(t, "50", stats.PendingWithdrawalAmount, "pending withdrawal amount")
			testutil.RequireMoney(t, "0", stats.CommissionPending, "nothing on hold")
			testutil.RequireMoney(t, "700", stats.CommissionReleased, "both levels released")
			testutil.RequireMoney(t, "0", stats.TotalWithdrawn, "nothing paid")

			c.expect("POST", "/api/admin/withdrawals/"+wr.ID+"/reject", `{"reason": "duplicate"}`, http.StatusOK, nil)
			c.expect("POST", "/api/admin/orders/"+o.OrderID+"/refund", "", http.StatusOK, nil)

			type actionView struct {
				Action     string            `json:"action"`
				TargetType string            `json:"target_type"`
				TargetID   string            `json:"target_id"`
				Details    map[string]string `json:"details"`
			}
			var actions []actionView
			c.expect("GET", "/api/admin/audit-logs", "", http.StatusOK, &actions)
			require.Len(t, actions, 3)
			require.Equal(t, "order.refund", actions[0].Action, "newest first")
			require.Equal(t, o.OrderID, actions[0].TargetID)
			require.Equal(t, "2", actions[0].Details["reversed_count"])
			require.Equal(t, "withdrawal.reject", actions[1].Action)
			require.Equal(t, "duplicate", actions[1].Details["reason"])
			require.Equal(t, "commission.release", actions[2].Action)
			require.Equal(t, "2", actions[2].Details["released"])

			c.expect("GET", "/api/admin/audit-logs?action=withdrawal.reject&limit=1", "", http.StatusOK, &actions)
			require.Len(t, actions, 1)
			require.Equal(t, wr.ID, actions[0].TargetID)

			status, _ := c.do("GET", "/api/admin/audit-logs?admin_id=nope", "")
			require.Equal(t, http.StatusBadRequest, status)
		})
	})

	t.Run("errors", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			status, body := c.do("GET", "/api/accounts/404", "")
			require.Equal(t, http.StatusNotFound, status)
			require.JSONEq(t, `{"error": "service_error", "message": "Account not found"}`, string(body))

			status, _ = c.do("GET", "/api/orders/ORD2024010100000000", "")
			require.Equal(t, http.StatusNotFound, status)

			c.expect("POST", "/api/accounts", `{"external_id": "1001"}`, http.StatusOK, nil)

			status, body = c.do("POST", "/api/accounts/1001/withdrawals", `{"amount": "500", "method": "bank"}`)
			require.Equal(t, http.StatusBadRequest, status)
			require.JSONEq(t, `{
				"error": "validation_failed",
				"message": "Request validation failed",
				"fields": {
					"bank_account": "This field is required",
					"ifsc_code": "This field is required",
					"account_holder_name": "This field is required"
				}
			}`, string(body))

			status, body = c.do("POST", "/api/accounts/1001/withdrawals", `{"amount": "499", "method": "upi", "upi_id": "a@upi"}`)
			require.Equal(t, http.StatusBadRequest, status)
			require.JSONEq(t, `{"error": "service_error", "message": "Amount is below minimum withdrawal"}`, string(body))

			status, _ = c.do("POST", "/api/accounts/1001/withdrawals", `{"amount": "500", "method": "upi", "upi_id": "a@upi"}`)
			require.Equal(t, http.StatusPaymentRequired, status, "nothing to withdraw")

			status, _ = c.do("GET", "/api/accounts/1001/wallet/transactions?kind=bonus", "")
			require.Equal(t, http.StatusBadRequest, status)

			status, _ = c.do("GET", "/api/accounts/1001/withdrawals?limit=0", "")
			require.Equal(t, http.StatusBadRequest, status)

			status, _ = c.do("POST", "/api/orders", `{"external_id": "1001", "amount": "-1"}`)
			require.Equal(t, http.StatusBadRequest, status)
		})
	})

	t.Run("ops endpoints", func(t *testing.T) {
		withServer(t, func(c *apiClient) {
			status, body := c.do("GET", "/healthz", "")
			require.Equal(t, http.StatusOK, status)
			require.JSONEq(t, `{"status": "ok"}`, string(body))

			// Request above is already counted
			status, body = c.do("GET", "/metrics", "")
			require.Equal(t, http.StatusOK, status)
			require.Contains(t, string(body), `refledger_http_requests_total{method="GET",path="GET /healthz",status="200"}`)
		})
	})
}
