package refcheck

import (
	"errors"
	"fmt"
	"testing"

	"server/internal/domain"
)

func TestCheckAllCountBounds(t *testing.T) {
	if err := CheckAll(nil); !errors.Is(err, ErrReferenceCount) {
		t.Fatalf("empty array: got %v", err)
	}

	refs := make([]string, 31)
	for i := range refs {
		refs[i] = fmt.Sprintf("https://images.example.com/%d.jpg", i)
	}
	if err := CheckAll(refs); !errors.Is(err, ErrReferenceCount) {
		t.Fatalf("31 refs: got %v", err)
	}
	if err := CheckAll(refs[:30]); err != nil {
		t.Fatalf("30 refs should pass: %v", err)
	}
	if err := CheckAll(refs[:1]); err != nil {
		t.Fatalf("1 ref should pass: %v", err)
	}
}

func TestCheckSchemes(t *testing.T) {
	cases := map[string]error{
		"https://cdn.example.com/a.png":       nil,
		"http://cdn.example.com/a.png":        ErrUnsafeScheme,
		"ftp://cdn.example.com/a.png":         ErrUnsafeScheme,
		"file:///etc/passwd":                  ErrUnsafeScheme,
		"data:image/png;base64,AAAA":          ErrUnsafeScheme,
		"//cdn.example.com/a.png":             ErrMalformed,
		"cdn.example.com/a.png":               ErrMalformed,
		"https://":                            ErrMalformed,
		"https://cdn.example.com/%zz":         ErrMalformed,
		"javascript:alert(1)":                 ErrUnsafeScheme,
		"https://cdn.example.com:8443/b.webp": nil,
	}
	for raw, want := range cases {
		err := Check(raw)
		if want == nil {
			if err != nil {
				t.Fatalf("%q: unexpected error %v", raw, err)
			}
			continue
		}
		if !errors.Is(err, want) {
			t.Fatalf("%q: got %v, want %v", raw, err, want)
		}
	}
}

func TestCheckPrivateNetworks(t *testing.T) {
	blocked := []string{
		"https://localhost/x.png",
		"https://LOCALHOST/x.png",
		"https://127.0.0.1/x.png",
		"https://127.8.8.8/x.png",
		"https://0.0.0.0/x.png",
		"https://[::1]/x.png",
		"https://169.254.169.254/latest/meta-data",
		"https://169.254.0.1/x.png",
		"https://10.0.0.1/x.png",
		"https://10.255.255.255/x.png",
		"https://172.16.0.1/x.png",
		"https://172.31.255.255/x.png",
		"https://192.168.1.1/x.png",
	}
	for _, raw := range blocked {
		if err := Check(raw); !errors.Is(err, ErrPrivateNetwork) {
			t.Fatalf("%q should be blocked, got %v", raw, err)
		}
	}

	allowed := []string{
		"https://172.15.0.1/x.png",
		"https://172.32.0.1/x.png",
		"https://11.0.0.1/x.png",
		"https://192.169.0.1/x.png",
		"https://8.8.8.8/x.png",
		"https://10.0.0.300/x.png", // octet out of range: not an IP literal, treated as public hostname
		"https://cdn.10.0.0.1.example.com/x.png",
	}
	for _, raw := range allowed {
		if err := Check(raw); err != nil {
			t.Fatalf("%q should pass, got %v", raw, err)
		}
	}
}

func TestErrorsWrapValidation(t *testing.T) {
	err := Check("http://example.com/a.png")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("scheme error should wrap domain.ErrValidation: %v", err)
	}
	if err := CheckAll([]string{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("count error should wrap domain.ErrValidation: %v", err)
	}
}
