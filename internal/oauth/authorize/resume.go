package authorize

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secretbox"
)

// ParamResume es el parámetro que transporta el request sellado entre
// /connect/authorize, /login y /connect/consent.
const ParamResume = "resume"

var resumeAAD = []byte("hellojohn/authorize-resume/v1")

var (
	ErrResumeInvalid = errors.New("resume token invalid")
	ErrResumeExpired = errors.New("resume token expired")
)

type resumePayload struct {
	Params string `json:"p"`
	Exp    int64  `json:"exp"`
}

// ResumeCodec sella los parámetros de authorize para retomar el flujo desde
// el principio después de login/consent. No hay estado del lado del servidor.
type ResumeCodec struct {
	box *secretbox.Box
	ttl time.Duration
	now func() time.Time
}

func NewResumeCodec(box *secretbox.Box, ttl time.Duration) *ResumeCodec {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResumeCodec{box: box, ttl: ttl, now: time.Now}
}

// Seal serializa params con vencimiento.
func (c *ResumeCodec) Seal(params url.Values) (string, error) {
	b, err := json.Marshal(resumePayload{Params: params.Encode(), Exp: c.now().Add(c.ttl).Unix()})
	if err != nil {
		return "", fmt.Errorf("resume: marshal: %w", err)
	}
	return c.box.Seal(b, resumeAAD)
}

// Open valida el sobre y devuelve los parámetros originales.
func (c *ResumeCodec) Open(token string) (url.Values, error) {
	if token == "" {
		return nil, ErrResumeInvalid
	}
	plain, err := c.box.Open(token, resumeAAD)
	if err != nil {
		return nil, ErrResumeInvalid
	}
	var p resumePayload
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, ErrResumeInvalid
	}
	if c.now().Unix() > p.Exp {
		return nil, ErrResumeExpired
	}
	vals, err := url.ParseQuery(p.Params)
	if err != nil {
		return nil, ErrResumeInvalid
	}
	return vals, nil
}
