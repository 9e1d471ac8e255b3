package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/hitoshi/dailyrelay/internal/model"
)

// validKey はファイル名として安全なキーの形式。
var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileStateRepo はディレクトリ配下のJSONファイルに状態を保持するストア。
// キーごとに1ファイルを使用し、一時ファイルへの書き込み後にリネームして原子的に置き換える。
type FileStateRepo struct {
	dir string
}

// NewFileStateRepo はFileStateRepoを生成する。ディレクトリが存在しない場合は作成する。
func NewFileStateRepo(dir string) (*FileStateRepo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("状態ディレクトリの作成に失敗しました: %w", err)
	}
	return &FileStateRepo{dir: dir}, nil
}

// Get は指定キーの状態を読み込む。ファイルが存在しない場合はnilを返す。
func (r *FileStateRepo) Get(_ context.Context, key string) (*model.DailyState, error) {
	path, err := r.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("状態ファイルの読み込みに失敗しました: %w", err)
	}

	var state model.DailyState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("状態ファイルのパースに失敗しました: %w", err)
	}
	return &state, nil
}

// Put は指定キーの状態を書き込む。
func (r *FileStateRepo) Put(_ context.Context, key string, state model.DailyState) error {
	path, err := r.path(key)
	if err != nil {
		return err
	}

	if state.DeliveredIDs == nil {
		state.DeliveredIDs = []string{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("状態のシリアライズに失敗しました: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルへの書き込みに失敗しました: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルの同期に失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルのクローズに失敗しました: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("状態ファイルの置き換えに失敗しました: %w", err)
	}
	return nil
}

// Delete は指定キーの状態ファイルを削除する。
func (r *FileStateRepo) Delete(_ context.Context, key string) error {
	path, err := r.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("状態ファイルの削除に失敗しました: %w", err)
	}
	return nil
}

// PingContext は状態ディレクトリにアクセスできるかを確認する。
func (r *FileStateRepo) PingContext(_ context.Context) error {
	info, err := os.Stat(r.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", r.dir)
	}
	return nil
}

func (r *FileStateRepo) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("不正な状態キーです: %q", key)
	}
	return filepath.Join(r.dir, key+".json"), nil
}
