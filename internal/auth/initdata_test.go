package auth

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

const testSecret = "123456:test-bot-token"

// signedPayload builds a query string signed with secret, issued at issued.
func signedPayload(t *testing.T, secret string, issued time.Time, user string) string {
	t.Helper()
	v := url.Values{}
	v.Set(FieldAuthDate, strconv.FormatInt(issued.Unix(), 10))
	v.Set("query_id", "AAHdF6IQAAAAAN0XohDhrOrc")
	if user != "" {
		v.Set(FieldUser, user)
	}
	v.Set(FieldHash, Sign(v, secret))
	return v.Encode()
}

func TestVerify_Success_ReturnsIdentity(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := signedPayload(t, testSecret, now.Add(-time.Minute),
		`{"id":279058397,"first_name":"Vladislav","last_name":"Kibenko","username":"vdkfrost","language_code":"ru"}`)

	id, err := Verify(payload, testSecret, 0, now)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.ExternalID != "279058397" {
		t.Fatalf("ExternalID = %q", id.ExternalID)
	}
	if id.Username != "vdkfrost" || id.FirstName != "Vladislav" || id.LastName != "Kibenko" || id.LanguageCode != "ru" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if !id.AuthDate.Equal(now.Add(-time.Minute)) {
		t.Fatalf("AuthDate = %v", id.AuthDate)
	}
}

func TestVerify_StringIDAndMissingDisplayFields(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cases := []struct {
		user, want string
	}{
		{`{"id":"42"}`, "42"},
		{`{"id":"user-abc"}`, "user-abc"},
		{`{"id":" 7 "}`, "7"},
		{`{"id":1e3}`, "1e3"},
	}
	for _, tc := range cases {
		id, err := Verify(signedPayload(t, testSecret, now, tc.user), testSecret, time.Hour, now)
		if err != nil {
			t.Fatalf("Verify(%s): %v", tc.user, err)
		}
		if id.ExternalID != tc.want || id.Username != "" || id.FirstName != "" {
			t.Fatalf("Verify(%s) = %+v; want ExternalID %q", tc.user, id, tc.want)
		}
	}
}

func TestVerify_FlippedSignatureCharacter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v, _ := url.ParseQuery(signedPayload(t, testSecret, now, `{"id":1}`))
	sig := v.Get(FieldHash)

	for i := range sig {
		b := []byte(sig)
		if b[i] == '0' {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
		v.Set(FieldHash, string(b))
		if _, err := Verify(v.Encode(), testSecret, 0, now); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("flip at %d: err = %v; want ErrBadSignature", i, err)
		}
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := signedPayload(t, testSecret, now, `{"id":1}`)
	if _, err := Verify(payload, "other-secret", 0, now); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v; want ErrBadSignature", err)
	}
}

func TestVerify_MalformedHex(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v, _ := url.ParseQuery(signedPayload(t, testSecret, now, `{"id":1}`))
	v.Set(FieldHash, "zz"+v.Get(FieldHash)[2:])
	if _, err := Verify(v.Encode(), testSecret, 0, now); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v; want ErrBadSignature", err)
	}
}

func TestVerify_Freshness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	maxAge := 3600 * time.Second

	cases := []struct {
		name   string
		issued time.Time
		want   error
	}{
		{"exactly max age", now.Add(-maxAge), nil},
		{"max age + 1s", now.Add(-maxAge - time.Second), ErrSignatureExpired},
		{"60s in future tolerated", now.Add(60 * time.Second), nil},
		{"61s in future", now.Add(61 * time.Second), ErrTimestampInFuture},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := signedPayload(t, testSecret, tc.issued, `{"id":7}`)
			_, err := Verify(payload, testSecret, maxAge, now)
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("err = %v; want %v", err, tc.want)
			}
		})
	}
}

func TestVerify_DefaultMaxAgeIs24h(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := signedPayload(t, testSecret, now.Add(-DefaultMaxAge-time.Second), `{"id":7}`)
	if _, err := Verify(payload, testSecret, 0, now); !errors.Is(err, ErrSignatureExpired) {
		t.Fatalf("err = %v; want ErrSignatureExpired", err)
	}
}

func TestVerify_StructuralFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)

	withSig := func(v url.Values) string {
		v.Set(FieldHash, Sign(v, testSecret))
		return v.Encode()
	}

	cases := []struct {
		name    string
		payload string
		want    error
	}{
		{"bad escape", "auth_date=%zz", ErrBadPayload},
		{"no hash", "auth_date=" + ts + "&user=%7B%22id%22%3A1%7D", ErrNoSignature},
		{"no auth_date", withSig(url.Values{FieldUser: {`{"id":1}`}}), ErrNoTimestamp},
		{"non-numeric auth_date", withSig(url.Values{FieldAuthDate: {"yesterday"}, FieldUser: {`{"id":1}`}}), ErrBadTimestamp},
		{"no user", withSig(url.Values{FieldAuthDate: {ts}}), ErrNoIdentity},
		{"user not json", withSig(url.Values{FieldAuthDate: {ts}, FieldUser: {"{id:1"}}), ErrBadIdentityJSON},
		{"user wrong type", withSig(url.Values{FieldAuthDate: {ts}, FieldUser: {`{"id":1,"first_name":5}`}}), ErrBadIdentityJSON},
		{"user id bool", withSig(url.Values{FieldAuthDate: {ts}, FieldUser: {`{"id":true}`}}), ErrBadIdentityJSON},
		{"user id object", withSig(url.Values{FieldAuthDate: {ts}, FieldUser: {`{"id":{"n":1}}`}}), ErrBadIdentityJSON},
		{"user id too long", withSig(url.Values{FieldAuthDate: {ts}, FieldUser: {`{"id":"` + strings.Repeat("x", 65) + `"}`}}), ErrBadIdentityJSON},
		{"user without id", withSig(url.Values{FieldAuthDate: {ts}, FieldUser: {`{"username":"x"}`}}), ErrNoIdentityID},
		{"user id empty", withSig(url.Values{FieldAuthDate: {ts}, FieldUser: {`{"id":"  "}`}}), ErrNoIdentityID},
		{"user id null", withSig(url.Values{FieldAuthDate: {ts}, FieldUser: {`{"id":null}`}}), ErrNoIdentityID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Verify(tc.payload, testSecret, 0, now); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v; want %v", err, tc.want)
			}
		})
	}
}

func TestDataCheckString_OrderIndependent(t *testing.T) {
	pairs := [][2]string{
		{"user", `{"id":1}`},
		{"auth_date", "1700000000"},
		{"query_id", "q"},
		{"chat_type", "private"},
		{"Zeta", "upper sorts first"},
	}
	build := func(order []int) url.Values {
		v := url.Values{}
		for _, i := range order {
			v.Add(pairs[i][0], pairs[i][1])
		}
		return v
	}

	want := "Zeta=upper sorts first\nauth_date=1700000000\nchat_type=private\nquery_id=q\nuser={\"id\":1}"
	for _, order := range [][]int{{0, 1, 2, 3, 4}, {4, 3, 2, 1, 0}, {2, 0, 4, 1, 3}} {
		if got := DataCheckString(build(order)); got != want {
			t.Fatalf("order %v:\n got %q\nwant %q", order, got, want)
		}
	}
}

func TestSign_IgnoresHashField(t *testing.T) {
	v := url.Values{FieldAuthDate: {"1"}}
	a := Sign(v, testSecret)
	v.Set(FieldHash, "whatever")
	if b := Sign(v, testSecret); a != b {
		t.Fatalf("Sign must ignore hash: %s vs %s", a, b)
	}
	if a != strings.ToLower(a) || len(a) != 64 {
		t.Fatalf("signature must be 64 lowercase hex chars, got %q", a)
	}
}

func TestCode(t *testing.T) {
	cases := map[error]string{
		ErrBadPayload:        "bad_payload",
		ErrNoSignature:       "no_signature",
		ErrNoTimestamp:       "no_timestamp",
		ErrBadTimestamp:      "bad_timestamp",
		ErrTimestampInFuture: "timestamp_in_future",
		ErrSignatureExpired:  "signature_expired",
		ErrBadSignature:      "bad_signature",
		ErrNoIdentity:        "no_identity",
		ErrBadIdentityJSON:   "bad_identity_json",
		ErrNoIdentityID:      "no_identity_id",
		errors.New("other"):  "unauthorized",
	}
	for err, want := range cases {
		if got := Code(err); got != want {
			t.Errorf("Code(%v) = %q; want %q", err, got, want)
		}
	}
}
