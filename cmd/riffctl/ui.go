package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

func printJobs(out map[string]any) {
	accent.Println("Jobs (daily order):")
	jobs, _ := out["jobs"].([]any)
	for i, j := range jobs {
		neutral.Printf("  %2d. %v\n", i+1, j)
	}
}

func printRunResult(out map[string]any) {
	if ok, _ := out["success"].(bool); !ok {
		danger.Println("Job failed")
		if msg, _ := out["error"].(string); msg != "" {
			neutral.Printf("  %s\n", msg)
		}
	} else {
		success.Println("Job complete")
	}
	res, _ := out["result"].(map[string]any)
	printJobFields(res, "  ")
}

func printDailyResult(out map[string]any) {
	if ok, _ := out["success"].(bool); ok {
		success.Println("Daily run complete")
	} else {
		danger.Println("Daily run failed")
	}
	res, _ := out["result"].(map[string]any)
	if res == nil {
		return
	}
	neutral.Printf("  processed=%v errors=%v\n", res["processed"], res["errors"])
	jobs, _ := res["jobs"].([]any)
	for _, j := range jobs {
		job, _ := j.(map[string]any)
		if job == nil {
			continue
		}
		accent.Printf("  %v\n", job["job"])
		printJobFields(job, "    ")
	}
}

func printJobFields(res map[string]any, indent string) {
	if res == nil {
		return
	}
	neutral.Printf("%sprocessed=%v errors=%v affected=%v\n",
		indent, res["processed"], res["errors"], res["items_affected"])
	counters, _ := res["counters"].(map[string]any)
	if len(counters) == 0 {
		return
	}
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		neutral.Printf("%s  %s=%v\n", indent, k, counters[k])
	}
}

func printRuns(out map[string]any) {
	runs, _ := out["runs"].([]any)
	if len(runs) == 0 {
		warn.Println("No runs recorded")
		return
	}
	accent.Printf("%-6s %-20s %-10s %-22s %s\n", "ID", "JOB", "STATUS", "STARTED", "SUMMARY")
	for _, r := range runs {
		run, _ := r.(map[string]any)
		if run == nil {
			continue
		}
		status := fmt.Sprintf("%v", run["status"])
		line := fmt.Sprintf("%-6v %-20v %-10v %-22v %v\n",
			run["id"], run["job_name"], status, run["started_at"], orEmpty(run["summary"]))
		switch status {
		case "success":
			neutral.Print(line)
		case "running":
			warn.Print(line)
		default:
			danger.Print(line)
		}
	}
}

func printAccept(out map[string]any) {
	success.Println("Offer accepted")
	neutral.Printf("  contract=%v payout=%v starts=%v ends=%v\n",
		out["contract_id"], out["payout"], out["starts_at"], out["ends_at"])
}

func orEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}
