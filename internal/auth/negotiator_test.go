// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	"golang.org/x/crypto/scrypt"
	gc "gopkg.in/check.v1"

	"github.com/herdmode/herdmode/core/session"
	"github.com/herdmode/herdmode/internal/auth"
)

const saltResponse = `[
	{"salt":[1,-2,3],"params":{"N":16,"r":1,"p":1,"keyLen":16}},
	{"salt":[-128,7],"params":{"N":32,"r":2,"p":1,"keyLen":8}}
]`

type identityProvider struct {
	mu           sync.Mutex
	saltStatus   int
	saltBody     string
	loginStatus  int
	loginBody    string
	saltRequest  map[string]interface{}
	loginRequest map[string]interface{}
}

func (p *identityProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	body, _ := io.ReadAll(req.Body)
	var decoded map[string]interface{}
	_ = json.Unmarshal(body, &decoded)

	switch req.URL.Path {
	case "/get_salt":
		p.saltRequest = decoded
		w.WriteHeader(p.saltStatus)
		_, _ = io.WriteString(w, p.saltBody)
	case "/login":
		p.loginRequest = decoded
		w.WriteHeader(p.loginStatus)
		_, _ = io.WriteString(w, p.loginBody)
	default:
		http.NotFound(w, req)
	}
}

type negotiatorSuite struct {
	provider *identityProvider
	server   *httptest.Server
}

var _ = gc.Suite(&negotiatorSuite{})

func (s *negotiatorSuite) SetUpTest(c *gc.C) {
	s.provider = &identityProvider{
		saltStatus:  http.StatusOK,
		saltBody:    saltResponse,
		loginStatus: http.StatusOK,
		loginBody:   "  the-token\n",
	}
	// A TLS server with a self signed certificate, like the real one.
	s.server = httptest.NewTLSServer(s.provider)
}

func (s *negotiatorSuite) TearDownTest(c *gc.C) {
	s.server.Close()
}

func (s *negotiatorSuite) newNegotiator(c *gc.C) *auth.Negotiator {
	n, err := auth.NewNegotiator(auth.Config{
		SaltURL:    s.server.URL + "/get_salt",
		LoginURL:   s.server.URL + "/login",
		HTTPClient: auth.NewHTTPClient(true, 10*time.Second),
		Hasher:     auth.ScryptHasher{},
	})
	c.Assert(err, jc.ErrorIsNil)
	return n
}

func (s *negotiatorSuite) TestConfigValidation(c *gc.C) {
	_, err := auth.NewNegotiator(auth.Config{})
	c.Check(errors.Is(err, errors.NotValid), jc.IsTrue)
}

func (s *negotiatorSuite) TestLogin(c *gc.C) {
	token, err := s.newNegotiator(c).Login(context.Background(), "ada", "secret")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(token, gc.Equals, "the-token")

	c.Check(s.provider.saltRequest, jc.DeepEquals, map[string]interface{}{
		"username":    "ada",
		"application": "VmsFarm",
	})

	login := s.provider.loginRequest
	c.Check(login["username"], gc.Equals, "ada")
	c.Check(login["password4"], gc.Equals, "")
	c.Check(login["ttl"], gc.Equals, float64(999999))
	c.Check(login["application"], gc.Equals, "VmsFarm")
	c.Check(login["log"], gc.Equals, "Automated Login")

	s.checkHashedPassword(c, login["password1"], []int{1, -2, 3}, []byte{1, 254, 3}, 16, 1, 1, 16)
	s.checkHashedPassword(c, login["password2"], []int{-128, 7}, []byte{128, 7}, 32, 2, 1, 8)
}

func (s *negotiatorSuite) checkHashedPassword(
	c *gc.C, field interface{}, signed []int, unsigned []byte, n, r, p, keyLen int,
) {
	encoded, ok := field.(string)
	c.Assert(ok, jc.IsTrue)

	var doc struct {
		Key      []int                  `json:"key"`
		Salt     []int                  `json:"salt"`
		Params   map[string]interface{} `json:"params"`
		IsHashed bool                   `json:"isHashed"`
	}
	err := json.Unmarshal([]byte(encoded), &doc)
	c.Assert(err, jc.ErrorIsNil)

	want, err := scrypt.Key([]byte("secret"), unsigned, n, r, p, keyLen)
	c.Assert(err, jc.ErrorIsNil)
	wantInts := make([]int, len(want))
	for i, b := range want {
		wantInts[i] = int(b)
	}
	c.Check(doc.Key, jc.DeepEquals, wantInts)
	c.Check(doc.Salt, jc.DeepEquals, signed)
	c.Check(doc.IsHashed, jc.IsTrue)
	c.Check(doc.Params["N"], gc.Equals, float64(n))
	c.Check(doc.Params["keyLen"], gc.Equals, float64(keyLen))
}

func (s *negotiatorSuite) TestSaltFailure(c *gc.C) {
	s.provider.saltStatus = http.StatusInternalServerError
	s.provider.saltBody = "boom"

	_, err := s.newNegotiator(c).Login(context.Background(), "ada", "secret")
	c.Assert(err, gc.ErrorMatches, `fetching salt: salt request returned 500: boom`)
	c.Check(s.provider.loginRequest, gc.IsNil)
}

func (s *negotiatorSuite) TestSaltUndecodable(c *gc.C) {
	s.provider.saltBody = "not json"

	_, err := s.newNegotiator(c).Login(context.Background(), "ada", "secret")
	c.Check(errors.Is(err, errors.NotValid), jc.IsTrue)
	c.Check(s.provider.loginRequest, gc.IsNil)
}

func (s *negotiatorSuite) TestSaltNeedsTwoParameterSets(c *gc.C) {
	s.provider.saltBody = `[{"salt":[1],"params":{"N":16,"r":1,"p":1,"keyLen":16}}]`

	_, err := s.newNegotiator(c).Login(context.Background(), "ada", "secret")
	c.Check(errors.Is(err, errors.NotValid), jc.IsTrue)
	c.Check(s.provider.loginRequest, gc.IsNil)
}

func (s *negotiatorSuite) TestLoginRejected(c *gc.C) {
	s.provider.loginStatus = http.StatusUnauthorized
	s.provider.loginBody = "bad password"

	_, err := s.newNegotiator(c).Login(context.Background(), "ada", "secret")
	c.Check(errors.Is(err, auth.ErrLoginRejected), jc.IsTrue)
	c.Check(err, gc.ErrorMatches, `.*bad password.*`)
}

func (s *negotiatorSuite) TestLoginEmptyToken(c *gc.C) {
	s.provider.loginBody = "   "

	_, err := s.newNegotiator(c).Login(context.Background(), "ada", "secret")
	c.Check(errors.Is(err, auth.ErrLoginRejected), jc.IsTrue)
}

func (s *negotiatorSuite) TestVerifiedClientRejectsSelfSignedCertificate(c *gc.C) {
	n, err := auth.NewNegotiator(auth.Config{
		SaltURL:    s.server.URL + "/get_salt",
		LoginURL:   s.server.URL + "/login",
		HTTPClient: auth.NewHTTPClient(false, 10*time.Second),
		Hasher:     auth.ScryptHasher{},
	})
	c.Assert(err, jc.ErrorIsNil)

	_, err = n.Login(context.Background(), "ada", "secret")
	c.Check(err, gc.ErrorMatches, `fetching salt: POST .*certificate.*`)
}

type tokenSource struct {
	token string
	err   error
}

func (t tokenSource) Login(context.Context, string, string) (string, error) {
	return t.token, t.err
}

type authenticateSuite struct{}

var _ = gc.Suite(&authenticateSuite{})

func (s *authenticateSuite) TestSuccessReplacesToken(c *gc.C) {
	sess := session.New()
	sess.Replace(session.Snapshot{Token: "old"})

	err := auth.Authenticate(context.Background(), tokenSource{token: "new"}, sess, "ada", "secret")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(sess.Snapshot().Token, gc.Equals, "new")
}

func (s *authenticateSuite) TestFailureLeavesSession(c *gc.C) {
	sess := session.New()
	sess.Replace(session.Snapshot{Token: "old", User: session.User{Username: "ada"}, HasUser: true})

	err := auth.Authenticate(context.Background(), tokenSource{err: auth.ErrLoginRejected}, sess, "ada", "secret")
	c.Check(errors.Is(err, auth.ErrLoginRejected), jc.IsTrue)

	snap := sess.Snapshot()
	c.Check(snap.Token, gc.Equals, "old")
	c.Check(snap.User.Username, gc.Equals, "ada")
}
