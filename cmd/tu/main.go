package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"torrentutil/internal/hashing"
	"torrentutil/internal/torrent"
)

var verbose bool

func vprintfln(format string, a ...any) {
	if verbose {
		fmt.Printf(format+"\n", a...)
	}
}

// repeatable flag, e.g. -t url1 -t url2
type string_list []string

func (s *string_list) String() string {
	return strings.Join(*s, ",")
}

func (s *string_list) Set(value string) error {
	*s = append(*s, value)
	return nil
}

var (
	mode        string
	trackers    string_list
	comment     string
	piece_size  int64
	private     bool
	creator     string
	date        string
	encoding    string
	source      string
	no_progress bool
	time_suffix bool
	yes         bool
)

func main() {
	flag.StringVar(&mode, "m", "", "mode: create|print|verify|modify (default: inferred from paths)")
	flag.Var(&trackers, "t", "tracker url, repeatable; one tier per flag")
	flag.StringVar(&comment, "c", "", "comment")
	flag.Int64Var(&piece_size, "s", 0, "piece size in KiB")
	flag.BoolVar(&private, "p", false, "mark torrent as private")
	flag.StringVar(&creator, "by", "", "creator")
	flag.StringVar(&date, "time", "", "creation time, e.g. 2006-01-02 or unix layout via RFC3339")
	flag.StringVar(&encoding, "encoding", "", "text encoding")
	flag.StringVar(&source, "source", "", "source tag (private trackers)")
	flag.BoolVar(&no_progress, "no-progress", false, "disable the progress bar")
	flag.BoolVar(&time_suffix, "time-suffix", false, "append the current time to the output name")
	flag.BoolVar(&yes, "y", false, "assume yes: overwrite without asking")
	flag.BoolVar(&verbose, "v", false, "enable verbose output")
	flag.Parse()

	args := flag.Args()
	if mode == "" {
		mode = infer_mode(args)
	}

	var err error
	switch mode {
	case "create":
		err = run_create(args)
	case "print":
		err = run_print(args)
	case "verify":
		err = run_verify(args)
	case "modify":
		err = run_modify(args)
	default:
		fmt.Println("Usage: tu [options] <source-path | torrent-file [content-path]>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if err != nil {
		colorstring.Printf("[red]error: %v\n", err)
		os.Exit(1)
	}
}

// infer_mode classifies the positional arguments the way the flags cannot:
// a lone torrent file prints, a lone content path creates, a torrent file
// plus a content path verifies.
func infer_mode(args []string) string {
	switch len(args) {
	case 1:
		if is_torrent(args[0]) {
			if has_metadata_flags() {
				return "modify"
			}
			return "print"
		}
		if path_exists(args[0]) {
			return "create"
		}
	case 2:
		if is_torrent(args[0]) && path_exists(args[1]) {
			return "verify"
		}
		if is_torrent(args[1]) && path_exists(args[0]) {
			return "verify"
		}
	}
	return ""
}

func is_torrent(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".torrent") && path_exists(path)
}

func path_exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func has_metadata_flags() bool {
	return len(trackers) > 0 || comment != "" || creator != "" || date != "" ||
		encoding != "" || source != "" || piece_size != 0 || private
}

func run_create(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("create needs exactly one source path")
	}
	src, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	tor := torrent.New()
	defer tor.Close()

	if piece_size != 0 {
		if _, err := tor.SetPieceLength(piece_size<<10, true); err != nil {
			return err
		}
	}
	if err := apply_metadata(tor); err != nil {
		return err
	}

	load_job, err := tor.Load(src, false)
	if err != nil {
		return err
	}
	watch_job(load_job, "hashing")
	if load_job.Failed() {
		return fmt.Errorf("hashing failed: %s", load_job.FailedReason())
	}
	vprintfln("hashed %d pieces from %s", tor.NumPieces(), src)

	target_name := tor.Name()
	if time_suffix {
		target_name += time.Now().Format("-20060102-150405")
	}
	target := filepath.Join(filepath.Dir(src), target_name+".torrent")
	if !yes && path_exists(target) && !confirm(fmt.Sprintf("overwrite %q?", target)) {
		return fmt.Errorf("aborted")
	}

	write_job, err := tor.Write(target, true)
	if err != nil {
		return err
	}
	write_job.Wait()
	if write_job.Failed() {
		return fmt.Errorf("writing failed: %s", write_job.FailedReason())
	}

	colorstring.Printf("[green]created %s\n", target)
	fmt.Printf("  hash:   %s\n", tor.Hash())
	fmt.Printf("  magnet: %s\n", tor.Magnet())
	return nil
}

func run_print(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("print needs exactly one torrent file")
	}
	tor, err := read_torrent(args[0])
	if err != nil {
		return err
	}
	defer tor.Close()

	print_row("name", tor.Name())
	print_row("hash", tor.Hash())
	print_row("size", format_size(tor.Size()))
	print_row("piece length", format_size(tor.PieceLength()))
	print_row("pieces", fmt.Sprintf("%d", tor.NumPieces()))
	print_row("files", fmt.Sprintf("%d", tor.NumFiles()))
	if tor.Private() {
		print_row("private", "yes")
	}
	if c := tor.Comment(); c != "" {
		print_row("comment", c)
	}
	if by := tor.CreatedBy(); by != "" {
		print_row("created by", by)
	}
	if d := tor.CreationDate(); d > 0 {
		print_row("created", time.Unix(d, 0).UTC().Format(time.RFC3339))
	}
	print_row("encoding", tor.Encoding())
	if s := tor.Source(); s != "" {
		print_row("source", s)
	}
	for i, tier := range tor.TrackerTiers() {
		print_row(fmt.Sprintf("tier %d", i), strings.Join(tier, " "))
	}
	print_row("magnet", tor.MinimalMagnet())

	if verbose {
		name := tor.Name()
		for _, f := range tor.FileList() {
			parts := append([]string{name}, f.Path...)
			fmt.Printf("  %-10s %s\n", format_size(f.Size), strings.Join(parts, "/"))
		}
	}
	return nil
}

func run_verify(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("verify needs a torrent file and a content path")
	}
	tpath, spath := args[0], args[1]
	if !is_torrent(tpath) {
		tpath, spath = spath, tpath
	}

	tor, err := read_torrent(tpath)
	if err != nil {
		return err
	}
	defer tor.Close()

	verify_job, err := tor.Verify(spath)
	if err != nil {
		return err
	}
	watch_job(verify_job, "verifying")
	if verify_job.Failed() {
		return fmt.Errorf("verify failed: %s", verify_job.FailedReason())
	}

	result := verify_job.Result().(hashing.VerifyResult)
	if len(result.Pieces) == 0 && len(result.Files) == 0 {
		colorstring.Printf("[green]all %d pieces ok\n", tor.NumPieces())
		return nil
	}
	colorstring.Printf("[red]%d of %d pieces broken, %d files affected\n",
		len(result.Pieces), tor.NumPieces(), len(result.Files))
	for _, f := range result.Files {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

func run_modify(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("modify needs exactly one torrent file")
	}
	tpath := args[0]

	tor, err := read_torrent(tpath)
	if err != nil {
		return err
	}
	defer tor.Close()

	if piece_size != 0 {
		return fmt.Errorf("cannot change the piece size of an existing torrent without re-hashing; use create")
	}
	if err := apply_metadata(tor); err != nil {
		return err
	}
	tor.WaitIdle()

	if !yes && !confirm(fmt.Sprintf("overwrite %q?", tpath)) {
		return fmt.Errorf("aborted")
	}
	write_job, err := tor.Write(tpath, true)
	if err != nil {
		return err
	}
	write_job.Wait()
	if write_job.Failed() {
		return fmt.Errorf("writing failed: %s", write_job.FailedReason())
	}
	colorstring.Printf("[green]updated %s\n", tpath)
	return nil
}

// apply_metadata queues one job per present metadata flag; validation
// errors surface here, execution errors after the caller waits.
func apply_metadata(tor *torrent.Torrent) error {
	if len(trackers) > 0 {
		tiers := [][]string{}
		for _, url := range trackers {
			tiers = append(tiers, []string{url})
		}
		if _, err := tor.SetTrackerTiers(tiers); err != nil {
			return err
		}
	}
	if comment != "" {
		if _, err := tor.SetComment(comment); err != nil {
			return err
		}
	}
	if creator != "" {
		if _, err := tor.SetCreator(creator); err != nil {
			return err
		}
	}
	if date != "" {
		if _, err := tor.SetDateString(date, ""); err != nil {
			return err
		}
	}
	if encoding != "" {
		if _, err := tor.SetEncoding(encoding); err != nil {
			return err
		}
	}
	if source != "" {
		if _, err := tor.SetSource(source); err != nil {
			return err
		}
	}
	if private {
		if _, err := tor.SetPrivate(true); err != nil {
			return err
		}
	}
	return nil
}

func read_torrent(tpath string) (*torrent.Torrent, error) {
	tor := torrent.New()
	job, err := tor.Read(tpath)
	if err != nil {
		tor.Close()
		return nil, err
	}
	job.Wait()
	if job.Failed() {
		tor.Close()
		return nil, fmt.Errorf("reading %s: %s", tpath, job.FailedReason())
	}
	vprintfln("read torrent %s", tpath)
	return tor, nil
}

// watch_job polls the job's progress fraction into a terminal bar; without
// a terminal it just waits.
func watch_job(job *torrent.Job, label string) {
	if no_progress || !term.IsTerminal(int(os.Stdout.Fd())) {
		job.Wait()
		return
	}

	bar := progressbar.NewOptions64(1000,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	for !job.Done() {
		bar.Set64(int64(job.Progress() * 1000))
		time.Sleep(100 * time.Millisecond)
	}
	bar.Set64(1000)
	bar.Finish()
}

func confirm(message string) bool {
	fmt.Printf("%s [y/N] ", message)
	var answer string
	fmt.Scanln(&answer)
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
}

func print_row(label, value string) {
	fmt.Printf("  %-14s %s\n", label, value)
}

func format_size(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
