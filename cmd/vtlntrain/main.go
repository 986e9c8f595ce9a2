package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ieee0824/lvtln-go/audio"
	"github.com/ieee0824/lvtln-go/internal/logging"
	"github.com/ieee0824/lvtln-go/vtln"
)

func main() {
	manifestPath := flag.String("manifest", "data/manifest.tsv", "path to manifest TSV (wav_path<TAB>utterance<TAB>speaker)")
	warpsOut := flag.String("warps", "data/warps.yaml", "output warp mapping path")
	modelOut := flag.String("model", "", "optional output path for the trained warp model")
	groupBy := flag.String("group-by", "speaker", "key the warp mapping by \"speaker\" or \"utterance\"")
	byUtterance := flag.Bool("by-utterance", false, "estimate one warp per utterance instead of pooling per speaker")
	numIters := flag.Int("iter", 15, "number of EM refinement passes")
	minWarp := flag.Float64("min-warp", 0.85, "smallest warp factor on the grid")
	maxWarp := flag.Float64("max-warp", 1.25, "largest warp factor on the grid")
	warpStep := flag.Float64("warp-step", 0.01, "warp grid spacing")
	norm := flag.String("norm", "offset", "transform normalization: none, offset or diag")
	numGauss := flag.Int("gauss", 64, "number of UBM Gaussians")
	njobs := flag.Int("jobs", 1, "parallel feature-extraction workers")
	flag.Parse()

	log := logging.Init()
	defer log.Sync()

	normType, err := vtln.ParseNormType(*norm)
	if err != nil {
		log.Fatalw("bad norm type", "error", err)
	}

	cfg := vtln.DefaultTrainerConfig()
	cfg.NumIters = *numIters
	cfg.MinWarp = *minWarp
	cfg.MaxWarp = *maxWarp
	cfg.WarpStep = *warpStep
	cfg.NormType = normType
	cfg.BySpeaker = !*byUtterance
	cfg.NJobs = *njobs
	cfg.UBM.NumGauss = *numGauss

	utts, err := readManifest(*manifestPath, cfg.BySpeaker)
	if err != nil {
		log.Fatalw("read manifest", "error", err)
	}
	log.Infow("loaded manifest", "utterances", len(utts))

	trainer := vtln.NewTrainer(cfg, log)
	warps, err := trainer.Train(utts, nil, vtln.GroupBy(*groupBy))
	if err != nil {
		log.Fatalw("training failed", "error", err)
	}

	if err := vtln.SaveWarps(*warpsOut, warps); err != nil {
		log.Fatalw("save warps", "error", err)
	}
	log.Infow("wrote warp mapping", "path", *warpsOut, "entries", len(warps))

	if *modelOut != "" {
		if err := trainer.Model().Save(*modelOut); err != nil {
			log.Fatalw("save model", "error", err)
		}
		log.Infow("wrote warp model", "path", *modelOut)
	}
}

// readManifest loads the training set. Each line names a WAV file, an
// utterance id and, optionally, a speaker label.
func readManifest(path string, needSpeaker bool) ([]vtln.Utterance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var utts []vtln.Utterance
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 || (needSpeaker && len(parts) < 3) {
			return nil, fmt.Errorf("line %d: expected wav_path<TAB>utterance<TAB>speaker, got %q", lineNo, line)
		}

		samples, rate, err := audio.ReadWAVFile(parts[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: read %s: %w", lineNo, parts[0], err)
		}
		u := vtln.Utterance{Name: parts[1], Samples: samples, SampleRate: rate}
		if len(parts) > 2 {
			u.Speaker = parts[2]
		}
		utts = append(utts, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return utts, nil
}
