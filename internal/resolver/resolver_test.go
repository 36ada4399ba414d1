package resolver

import (
	"sync"
	"testing"

	"github.com/getsentry/hotspot/internal/frame"
	"github.com/getsentry/hotspot/internal/testutil"
)

func testModules() []Module {
	return []Module{
		{
			Name: "libc.so.6",
			Base: 0x7000,
			Size: 0x1000,
			Symbols: []Symbol{
				{Name: "memcpy", Start: 0x7100, Size: 0x80},
			},
		},
		{
			Path: "/usr/bin/app",
			Base: 0x1000,
			Size: 0x2000,
			Symbols: []Symbol{
				{
					Name:         "foo",
					Start:        0x1200,
					Size:         0x100,
					File:         "/build/src/foo.c",
					FunctionLine: 20,
					Lines: []LineEntry{
						{Address: 0x1240, Line: 25},
						{Address: 0x1200, Line: 21},
					},
				},
				{
					Name:         "main",
					Start:        0x1100,
					File:         "/build/src/main.c",
					FunctionLine: 3,
				},
				{
					Name:  "_ZN3app6workerEv",
					Start: 0x1800,
					Size:  0x10,
				},
			},
		},
	}
}

func TestSymbolTableResolve(t *testing.T) {
	paths := NewPathMap(PrefixRule{Prefix: "/build/", Replace: "/home/dev/"})
	table, err := NewSymbolTable(testModules(), paths)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		addr uint64
		want frame.Frame
	}{
		{
			name: "address outside of every module",
			addr: 0x10,
			want: frame.Placeholder(0x10),
		},
		{
			name: "address in module gap",
			addr: 0x5000,
			want: frame.Placeholder(0x5000),
		},
		{
			name: "module without covering symbol",
			addr: 0x1000,
			want: frame.Frame{InstructionAddr: 0x1000, Symbol: frame.Unknown, Module: "app"},
		},
		{
			name: "symbol without size extends to the next one",
			addr: 0x11f0,
			want: frame.Frame{
				InstructionAddr: 0x11f0,
				Symbol:          "main",
				Module:          "app",
				File:            "/home/dev/src/main.c",
				FunctionLine:    3,
				Line:            3,
			},
		},
		{
			name: "line table lookup",
			addr: 0x1250,
			want: frame.Frame{
				InstructionAddr: 0x1250,
				Symbol:          "foo",
				Module:          "app",
				File:            "/home/dev/src/foo.c",
				FunctionLine:    20,
				Line:            25,
			},
		},
		{
			name: "past the end of a sized symbol",
			addr: 0x1300,
			want: frame.Frame{InstructionAddr: 0x1300, Symbol: frame.Unknown, Module: "app"},
		},
		{
			name: "demangled symbol",
			addr: 0x1804,
			want: frame.Frame{InstructionAddr: 0x1804, Symbol: "app::worker()", Module: "app"},
		},
		{
			name: "named module",
			addr: 0x7110,
			want: frame.Frame{InstructionAddr: 0x7110, Symbol: "memcpy", Module: "libc.so.6"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if diff := testutil.Diff(table.Resolve(test.addr), test.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestNewSymbolTableRejectsEmptyModule(t *testing.T) {
	_, err := NewSymbolTable([]Module{{Name: "empty", Base: 0x10}}, nil)
	if err == nil {
		t.Fatal("expected an error for a module without size")
	}
}

func TestPathMap(t *testing.T) {
	regexRule, err := NewRegexRule(`^C:\\src\\(.*)$`, "/mnt/src/$1")
	if err != nil {
		t.Fatal(err)
	}
	m := NewPathMap(PrefixRule{Prefix: "/build/", Replace: "/home/"})
	m.Add(regexRule)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "prefix", in: "/build/a.c", want: "/home/a.c"},
		{name: "regex", in: `C:\src\b.h`, want: "/mnt/src/b.h"},
		{name: "no match", in: "/other/c.c", want: "/other/c.c"},
		{name: "empty", in: "", want: ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := m.Apply(test.in); got != test.want {
				t.Fatalf("expected %q, got %q", test.want, got)
			}
		})
	}

	var nilMap *PathMap
	if got := nilMap.Apply("/x"); got != "/x" {
		t.Fatalf("nil map should not rewrite, got %q", got)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 rules, got %d", m.Len())
	}
}

func TestNewRegexRuleInvalid(t *testing.T) {
	if _, err := NewRegexRule("(", ""); err == nil {
		t.Fatal("expected an error for an invalid pattern")
	}
}

func TestCacheSharedAcrossSpaces(t *testing.T) {
	cache, err := NewCache(16)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	calls := map[uint64]int{}
	counting := func(space uint64, symbol string) Resolver {
		return Func(func(addr uint64) frame.Frame {
			mu.Lock()
			calls[space]++
			mu.Unlock()
			return frame.Frame{InstructionAddr: addr, Symbol: symbol, Module: "m"}
		})
	}

	a := cache.Wrap(1, counting(1, "a"))
	b := cache.Wrap(2, counting(2, "b"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := a.Resolve(0x10).Symbol; got != "a" {
					t.Errorf("expected symbol a, got %q", got)
				}
				if got := b.Resolve(0x10).Symbol; got != "b" {
					t.Errorf("expected symbol b, got %q", got)
				}
			}
		}()
	}
	wg.Wait()

	if cache.Len() != 2 {
		t.Fatalf("expected 2 cached frames, got %d", cache.Len())
	}
	if calls[1] == 0 || calls[2] == 0 {
		t.Fatalf("expected both resolvers to be consulted, got %v", calls)
	}
	if calls[1] >= 800 {
		t.Fatalf("expected cached lookups, got %d misses", calls[1])
	}

	cache.Purge()
	if cache.Len() != 0 {
		t.Fatalf("expected an empty cache after purge, got %d", cache.Len())
	}
}

func TestParsePathMap(t *testing.T) {
	m, err := ParsePathMap([]string{"/build/=/home/", `re:^C:\\src\\(.*)$=/mnt/src/$1`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 rules, got %d", m.Len())
	}
	if got := m.Apply(`C:\src\b.h`); got != "/mnt/src/b.h" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := m.Apply("/build/a.c"); got != "/home/a.c" {
		t.Fatalf("unexpected path %q", got)
	}

	for _, rule := range []string{"no-separator", "=/home/", "re:(=x"} {
		if _, err := ParsePathMap([]string{rule}); err == nil {
			t.Errorf("expected an error for rule %q", rule)
		}
	}
}
