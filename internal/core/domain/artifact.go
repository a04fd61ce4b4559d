package domain

// ArtifactSet is the bundle pushed to the registry for one successful run.
// Paths reference files in the run workspace; Files returns them in a stable
// order so push reporting and fingerprints are deterministic.
type ArtifactSet struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	Manifest    string `json:"manifest"`
	Lockfile    string `json:"lockfile"`
	Image       string `json:"image"`
	Module      string `json:"module"`
}

// Artifact is one named file within an ArtifactSet.
type Artifact struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Files returns the artifacts of the set in push order.
func (s ArtifactSet) Files() []Artifact {
	return []Artifact{
		{Name: ManifestFileName, Path: s.Manifest},
		{Name: LockfileName, Path: s.Lockfile},
		{Name: ImageFileName, Path: s.Image},
		{Name: ModuleFileName, Path: s.Module},
	}
}

// UploadState represents the terminal state of one sub-upload within a push.
type UploadState string

const (
	// UploadStateCompleted indicates the registry accepted the file.
	UploadStateCompleted UploadState = "completed"
	// UploadStateFailed indicates the upload failed after the retry budget
	// was exhausted (or immediately, for non-transient failures).
	UploadStateFailed UploadState = "failed"
	// UploadStateSkipped indicates the upload was never attempted because an
	// earlier upload in the set failed.
	UploadStateSkipped UploadState = "skipped"
)

// Upload reports the outcome of one sub-upload.
type Upload struct {
	Name     string      `json:"name"`
	Key      string      `json:"key"`
	State    UploadState `json:"state"`
	Attempts int         `json:"attempts,omitzero"`
	Error    string      `json:"error,omitzero"`
}

// PushResult is the registry client's report for one artifact set push.
// Even when the push fails as a whole, Uploads records which sub-uploads the
// registry accepted so a caller can decide on manual remediation.
type PushResult struct {
	// Ref is the registry location of the pushed set, e.g.
	// "s3://artifacts/envs/myenv/1.0".
	Ref string `json:"ref,omitzero"`

	// Uploads lists every sub-upload in push order.
	Uploads []Upload `json:"uploads"`
}

// Completed returns the uploads the registry accepted.
func (r PushResult) Completed() []Upload {
	return r.filter(UploadStateCompleted)
}

// Failed returns the uploads that terminally failed.
func (r PushResult) Failed() []Upload {
	return r.filter(UploadStateFailed)
}

func (r PushResult) filter(state UploadState) []Upload {
	var out []Upload
	for _, u := range r.Uploads {
		if u.State == state {
			out = append(out, u)
		}
	}
	return out
}
