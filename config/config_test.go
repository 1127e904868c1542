// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/herdmode/herdmode/config"
	coretesting "github.com/herdmode/herdmode/testing"
)

type configSuite struct {
	coretesting.BaseSuite
}

var _ = gc.Suite(&configSuite{})

const minimalJSON = `{
  "username": "farmer",
  "password": "s3cret",
  "urls": ["wss://vms1.invalid/ws", "wss://vms2.invalid/ws"]
}`

func (s *configSuite) TestParseJSONWithDefaults(c *gc.C) {
	cfg, err := config.Parse([]byte(minimalJSON))
	c.Assert(err, jc.ErrorIsNil)

	c.Check(cfg, jc.DeepEquals, config.Config{
		Username:           "farmer",
		Password:           "s3cret",
		URLs:               []string{"wss://vms1.invalid/ws", "wss://vms2.invalid/ws"},
		ControlEndpoint:    "wss://amssc.vms.delaval.com:8443/ws",
		SaltURL:            "https://amssc.vms.delaval.com:8445/get_salt",
		LoginURL:           "https://amssc.vms.delaval.com:8445/login",
		Origin:             "https://vms.delaval.com",
		UserAgent:          config.DefaultUserAgent,
		ListenAddress:      "0.0.0.0:5000",
		InsecureSkipVerify: true,
		RetryDelay:         5 * time.Second,
		AuthMessageDelay:   time.Second,
		KeepaliveInterval:  30 * time.Second,
		WriteTimeout:       10 * time.Second,
		HTTPTimeout:        30 * time.Second,
		LoginAttempts:      3,
		LoginRetryDelay:    10 * time.Second,
	})
}

func (s *configSuite) TestParseYAMLOverrides(c *gc.C) {
	cfg, err := config.Parse([]byte(`
username: farmer
password: s3cret
urls:
  - wss://vms1.invalid/ws
control-endpoint: wss://control.invalid/ws
salt-url: http://idp.invalid/salt
login-url: http://idp.invalid/login
listen-address: 127.0.0.1:8080
insecure-skip-verify: false
retry-delay: 1m
auth-message-delay: 0s
keepalive-interval: 45s
write-timeout: 2s
http-timeout: 5s
login-attempts: 1
login-retry-delay: 3s
`))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.ControlEndpoint, gc.Equals, "wss://control.invalid/ws")
	c.Check(cfg.SaltURL, gc.Equals, "http://idp.invalid/salt")
	c.Check(cfg.LoginURL, gc.Equals, "http://idp.invalid/login")
	c.Check(cfg.ListenAddress, gc.Equals, "127.0.0.1:8080")
	c.Check(cfg.InsecureSkipVerify, jc.IsFalse)
	c.Check(cfg.RetryDelay, gc.Equals, time.Minute)
	c.Check(cfg.AuthMessageDelay, gc.Equals, time.Duration(0))
	c.Check(cfg.KeepaliveInterval, gc.Equals, 45*time.Second)
	c.Check(cfg.WriteTimeout, gc.Equals, 2*time.Second)
	c.Check(cfg.HTTPTimeout, gc.Equals, 5*time.Second)
	c.Check(cfg.LoginAttempts, gc.Equals, 1)
	c.Check(cfg.LoginRetryDelay, gc.Equals, 3*time.Second)
}

func (s *configSuite) TestEndpoints(c *gc.C) {
	cfg, err := config.Parse([]byte(minimalJSON))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.Endpoints(), jc.DeepEquals, []string{
		"wss://amssc.vms.delaval.com:8443/ws",
		"wss://vms1.invalid/ws",
		"wss://vms2.invalid/ws",
	})
}

func (s *configSuite) TestParseInvalid(c *gc.C) {
	for i, test := range []struct {
		doc string
		err string
	}{{
		doc: `{"password": "p", "urls": ["wss://a/ws"]}`,
		err: "empty username not valid",
	}, {
		doc: `{"username": "u", "urls": ["wss://a/ws"]}`,
		err: "empty password not valid",
	}, {
		doc: `{"username": "u", "password": "p"}`,
		err: "empty urls not valid",
	}, {
		doc: `{"username": "u", "password": "p", "urls": ["https://a/ws"]}`,
		err: `url "https://a/ws" .* not valid`,
	}, {
		doc: `{"username": "u", "password": "p", "urls": ["wss://a/ws"], "salt-url": "idp/salt"}`,
		err: `url "idp/salt" .* not valid`,
	}, {
		doc: `{"username": "u", "password": "p", "urls": ["wss://a/ws"], "retry-delay": "soon"}`,
		err: `retry-delay "soon" not valid`,
	}, {
		doc: `{"username": "u", "password": "p", "urls": ["wss://a/ws"], "keepalive-interval": "-1s"}`,
		err: `keepalive-interval -1s not valid`,
	}, {
		doc: `{"username": "u", "password": "p", "urls": ["wss://a/ws"], "login-attempts": 0}`,
		err: `login-attempts 0 not valid`,
	}, {
		doc: `[1, 2`,
		err: `config document: .* not valid`,
	}} {
		c.Logf("test %d", i)
		_, err := config.Parse([]byte(test.doc))
		c.Check(errors.Is(err, errors.NotValid), jc.IsTrue)
		c.Check(err, gc.ErrorMatches, test.err)
	}
}

func (s *configSuite) TestRead(c *gc.C) {
	path := filepath.Join(c.MkDir(), "config.json")
	c.Assert(os.WriteFile(path, []byte(minimalJSON), 0600), jc.ErrorIsNil)

	cfg, err := config.Read(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.Username, gc.Equals, "farmer")
}

func (s *configSuite) TestReadMissing(c *gc.C) {
	path := filepath.Join(c.MkDir(), "missing.json")
	_, err := config.Read(path)
	c.Check(err, gc.ErrorMatches, `reading config ".*missing.json": .*`)
}

func (s *configSuite) TestReadInvalid(c *gc.C) {
	path := filepath.Join(c.MkDir(), "config.json")
	c.Assert(os.WriteFile(path, []byte(`{"username": "u"}`), 0600), jc.ErrorIsNil)

	_, err := config.Read(path)
	c.Check(err, gc.ErrorMatches, `config ".*config.json": empty password not valid`)
	c.Check(errors.Is(err, errors.NotValid), jc.IsTrue)
}
