// Shadow-compares the Go API against the legacy LMS during the migration.
// Replays a list of read-only requests against both bases and diffs status
// codes and normalized JSON bodies. Critical target diffs fail the run.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type targetsFile struct {
	Targets []target `json:"targets"`
}

type result struct {
	Target         target
	LegacyStatus   int
	GoStatus       int
	StatusMatch    bool
	BodyMatch      bool
	Err            error
	DurationGo     time.Duration
	DurationLegacy time.Duration
}

func main() {
	var (
		goBase      string
		legacyBase  string
		targetsPath string
		token       string
		ignoreRaw   string
		timeout     time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8080", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:8000", "legacy LMS base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "path to JSON targets file")
	flag.StringVar(&token, "token", "", "bearer token sent to both bases for authenticated targets")
	flag.StringVar(&ignoreRaw, "ignore-keys", "last_watched_at,enrolled_at,created_at,issued_at,submitted_at,meta", "comma separated JSON keys stripped before diffing")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}
	ignored := map[string]bool{}
	for _, k := range strings.Split(ignoreRaw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			ignored[k] = true
		}
	}

	client := &http.Client{Timeout: timeout}
	var results []result
	breaking, optionalDiff := 0, 0

	for _, tgt := range targets {
		res := compare(client, goBase, legacyBase, token, tgt, ignored)
		if res.Err != nil || !res.StatusMatch || !res.BodyMatch {
			if tgt.Critical {
				breaking++
			} else if res.Err == nil {
				optionalDiff++
			}
		}
		results = append(results, res)
	}

	printReport(results)
	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file targetsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return file.Targets, nil
}

func compare(client *http.Client, goBase, legacyBase, token string, tgt target, ignored map[string]bool) result {
	res := result{Target: tgt}

	goResp, goDur, err := perform(client, goBase, token, tgt)
	if err != nil {
		res.Err = fmt.Errorf("go request failed: %w", err)
		return res
	}
	defer goResp.Body.Close()
	legacyResp, legacyDur, err := perform(client, legacyBase, token, tgt)
	if err != nil {
		res.Err = fmt.Errorf("legacy request failed: %w", err)
		return res
	}
	defer legacyResp.Body.Close()

	res.DurationGo = goDur
	res.DurationLegacy = legacyDur
	res.GoStatus = goResp.StatusCode
	res.LegacyStatus = legacyResp.StatusCode
	res.StatusMatch = res.GoStatus == res.LegacyStatus

	goBody, err := io.ReadAll(goResp.Body)
	if err != nil {
		res.Err = fmt.Errorf("read go body: %w", err)
		return res
	}
	legacyBody, err := io.ReadAll(legacyResp.Body)
	if err != nil {
		res.Err = fmt.Errorf("read legacy body: %w", err)
		return res
	}
	res.BodyMatch = bodiesEqual(goBody, legacyBody, ignored)
	return res
}

func perform(client *http.Client, base, token string, tgt target) (*http.Response, time.Duration, error) {
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp, time.Since(start), nil
}

func bodiesEqual(a, b []byte, ignored map[string]bool) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}
	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	normalize(&aj, ignored)
	normalize(&bj, ignored)
	return reflect.DeepEqual(aj, bj)
}

// normalize strips volatile keys and collapses whole floats so that the two
// stacks' JSON encoders do not produce spurious diffs.
func normalize(v *interface{}, ignored map[string]bool) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k, v2 := range val {
			if ignored[k] {
				delete(val, k)
				continue
			}
			normalize(&v2, ignored)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2, ignored)
			val[i] = v2
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printReport(results []result) {
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.Err != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Target.Method, res.Target.Path)
		if res.Err != nil {
			fmt.Printf("  Error: %v\n", res.Err)
			continue
		}
		fmt.Printf("  Go: %d (%s) | Legacy: %d (%s)\n", res.GoStatus, res.DurationGo, res.LegacyStatus, res.DurationLegacy)
		fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
	}
}
