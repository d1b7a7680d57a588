package journal

import "time"

// FileRecord is the last known synced state of one logical path
type FileRecord struct {
	Path        string    `json:"path"`
	Inode       uint64    `json:"inode"`
	ModTime     time.Time `json:"mtime"`
	IsDirectory bool      `json:"is_directory"`
	ETag        string    `json:"etag"`
	FileID      string    `json:"file_id"`
	Size        int64     `json:"size"`
}

// dbFileRecord is the row shape; times are stored as RFC3339Nano text
type dbFileRecord struct {
	Path        string `db:"path"`
	Inode       int64  `db:"inode"`
	ModTime     string `db:"mtime"`
	IsDirectory bool   `db:"is_directory"`
	ETag        string `db:"etag"`
	FileID      string `db:"file_id"`
	Size        int64  `db:"size"`
}

func toDB(r *FileRecord) dbFileRecord {
	return dbFileRecord{
		Path:        r.Path,
		Inode:       int64(r.Inode),
		ModTime:     r.ModTime.UTC().Format(time.RFC3339Nano),
		IsDirectory: r.IsDirectory,
		ETag:        r.ETag,
		FileID:      r.FileID,
		Size:        r.Size,
	}
}

func (d dbFileRecord) toRecord() (*FileRecord, error) {
	mtime, err := time.Parse(time.RFC3339Nano, d.ModTime)
	if err != nil {
		return nil, err
	}
	return &FileRecord{
		Path:        d.Path,
		Inode:       uint64(d.Inode),
		ModTime:     mtime,
		IsDirectory: d.IsDirectory,
		ETag:        d.ETag,
		FileID:      d.FileID,
		Size:        d.Size,
	}, nil
}
