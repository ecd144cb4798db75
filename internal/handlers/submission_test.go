package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/intprep/apiserver/types"
)

func TestSubmissionHistory(t *testing.T) {
	api := newTestAPI(t)
	problem := createEchoProblem(t, api)
	_, token := api.userToken(t, "kim", types.RoleUser)
	_, otherToken := api.userToken(t, "leo", types.RoleUser)

	rec := api.do(t, http.MethodPost, "/execute/submit", token, SubmitRequest{
		RunRequest: RunRequest{
			SourceCode:      "print(input())",
			LanguageID:      71,
			Stdin:           []string{"5"},
			ExpectedOutputs: []string{"6"},
		},
		ProblemID: problem.ID,
	})
	expectStatus(t, rec, http.StatusOK)
	submitted := decodeBody[SubmitResponse](t, rec).Submission
	if submitted.Status != types.VerdictWrongAnswer {
		t.Fatalf("expected wrong answer, got %q", submitted.Status)
	}

	rec = api.do(t, http.MethodGet, "/submissions", token, nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decodeBody[map[string][]types.Submission](t, rec); len(list["submissions"]) != 1 {
		t.Fatalf("expected one submission, got %+v", list)
	}

	path := fmt.Sprintf("/submissions/%d", submitted.ID)
	rec = api.do(t, http.MethodGet, path, token, nil)
	expectStatus(t, rec, http.StatusOK)
	got := decodeBody[SubmitResponse](t, rec).Submission
	if len(got.TestcaseResults) != 1 || got.TestcaseResults[0].Passed {
		t.Fatalf("unexpected testcase results: %+v", got.TestcaseResults)
	}

	rec = api.do(t, http.MethodGet, path, otherToken, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = api.do(t, http.MethodGet, "/submissions/abc", token, nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = api.do(t, http.MethodGet, "/submissions/counts-by-date", token, nil)
	expectStatus(t, rec, http.StatusOK)
	counts := decodeBody[map[string][]types.DailyCount](t, rec)
	if len(counts["values"]) != 1 || counts["values"][0].Count != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	rec = api.do(t, http.MethodGet, fmt.Sprintf("/problems/%d/submissions", problem.ID), otherToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decodeBody[map[string][]types.Submission](t, rec); len(list["submissions"]) != 0 {
		t.Fatalf("expected no submissions for another user, got %+v", list)
	}

	rec = api.do(t, http.MethodGet, fmt.Sprintf("/problems/%d/submissions/count", problem.ID), otherToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if count := decodeBody[map[string]int](t, rec); count["count"] != 1 {
		t.Fatalf("expected count 1, got %+v", count)
	}
}

func TestSubmissionRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/submissions", "/submissions/1", "/submissions/counts-by-date", "/problems/1/submissions"} {
		rec := api.do(t, http.MethodGet, path, "", nil)
		expectStatus(t, rec, http.StatusUnauthorized)
	}
}
