package models

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"
	"log"
	"strconv"
	"time"
)

const REDIDX_RUN_CTIME = "sparktest:run:ctimeindex"

func keyForRunId(id uuid.UUID) string {
	return keyForRunIdString(id.String())
}

func keyForRunIdString(idString string) string {
	return fmt.Sprintf("sparktest:run:%s", idString)
}

type RedisRunStore struct {
	client *redis.Client
}

func NewRedisRunStore(client *redis.Client) *RedisRunStore {
	return &RedisRunStore{client: client}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

/**
flatten the run into field/value pairs for HMSET. Optional values that are not set are left out
so that they come back as nil.
*/
func (r *Run) toHashArgs() ([]interface{}, error) {
	commandsJson, marshalErr := json.Marshal(r.Commands)
	if marshalErr != nil {
		return nil, marshalErr
	}

	args := []interface{}{
		"id", r.Id.String(),
		"name", r.Name,
		"image", r.Image,
		"commands", string(commandsJson),
		"status", string(r.Status),
		"created_at", formatTime(r.CreatedAt),
		"k8s_job_name", r.K8sJobName,
	}

	optionalTimes := map[string]*time.Time{
		"pod_scheduled":     r.PodScheduled,
		"container_created": r.ContainerCreated,
		"container_started": r.ContainerStarted,
		"completed":         r.Completed,
		"failed":            r.Failed,
	}
	for k, v := range optionalTimes {
		if v != nil {
			args = append(args, k, formatTime(*v))
		}
	}
	if r.Duration != nil {
		args = append(args, "duration", strconv.Itoa(*r.Duration))
	}
	if r.Retries != nil {
		args = append(args, "retries", strconv.Itoa(*r.Retries))
	}
	if r.Logs != nil {
		logsJson, logsErr := json.Marshal(r.Logs)
		if logsErr != nil {
			return nil, logsErr
		}
		args = append(args, "logs", string(logsJson))
	}
	return args, nil
}

func RunFromMap(content map[string]string) (*Run, error) {
	var run Run
	decodeErr := CustomisedMapStructureDecode(content, &run)
	if decodeErr != nil {
		return nil, decodeErr
	}
	return &run, nil
}

func (s *RedisRunStore) CreateRun(ctx context.Context, run *Run) error {
	args, argsErr := run.toHashArgs()
	if argsErr != nil {
		log.Printf("ERROR RedisRunStore.CreateRun could not encode run %s: %s", run.Id, argsErr)
		return argsErr
	}

	pipe := s.client.WithContext(ctx).TxPipeline()
	pipe.HMSet(keyForRunId(run.Id), args...)
	pipe.ZAdd(REDIDX_RUN_CTIME, &redis.Z{
		Score:  float64(run.CreatedAt.UnixNano()),
		Member: run.Id.String(),
	})
	_, putErr := pipe.Exec()
	if putErr != nil {
		log.Printf("ERROR RedisRunStore.CreateRun could not save run %s: %s", run.Id, putErr)
		return putErr
	}
	return nil
}

/**
Retrieve the run for a given UUID from the datastore. Returns ErrRunNotFound if the run does not exist
*/
func (s *RedisRunStore) GetRunById(ctx context.Context, runId uuid.UUID) (*Run, error) {
	content, getErr := s.client.WithContext(ctx).HGetAll(keyForRunId(runId)).Result()
	if getErr != nil {
		log.Printf("ERROR RedisRunStore.GetRunById could not get run %s: %s", runId, getErr)
		return nil, getErr
	}

	if len(content) == 0 {
		return nil, ErrRunNotFound
	}

	run, decodeErr := RunFromMap(content)
	if decodeErr != nil {
		log.Printf("ERROR RedisRunStore.GetRunById could not decode data for run %s: %s", runId, decodeErr)
		return nil, decodeErr
	}
	return run, nil
}

/**
update only the status and duration fields of the stored run. The read-check-write is done under WATCH
so that a terminal status can never be overwritten, even by a concurrent writer.
*/
func (s *RedisRunStore) UpdateRunStatus(ctx context.Context, runId uuid.UUID, status RunStatus, durationSeconds *int) error {
	runKey := keyForRunId(runId)

	txf := func(tx *redis.Tx) error {
		current, getErr := tx.HGet(runKey, "status").Result()
		if getErr == redis.Nil {
			return ErrRunNotFound
		} else if getErr != nil {
			return getErr
		}
		if RunStatus(current).IsTerminal() {
			return ErrTerminalStatus
		}

		args := []interface{}{"status", string(status)}
		if durationSeconds != nil {
			args = append(args, "duration", strconv.Itoa(*durationSeconds))
		}
		switch status {
		case RUN_SUCCEEDED:
			args = append(args, "completed", formatTime(time.Now()))
		case RUN_FAILED:
			args = append(args, "failed", formatTime(time.Now()))
		}

		_, execErr := tx.TxPipelined(func(pipe redis.Pipeliner) error {
			pipe.HMSet(runKey, args...)
			return nil
		})
		return execErr
	}

	updateErr := s.client.WithContext(ctx).Watch(txf, runKey)
	if updateErr != nil && updateErr != ErrRunNotFound && updateErr != ErrTerminalStatus {
		log.Printf("ERROR RedisRunStore.UpdateRunStatus could not update run %s: %s", runId, updateErr)
	}
	return updateErr
}

/**
list up to `limit` runs, newest first. A limit of zero or less lists everything
*/
func (s *RedisRunStore) ListRuns(ctx context.Context, limit int64) ([]*Run, error) {
	client := s.client.WithContext(ctx)
	stop := limit - 1
	if limit <= 0 {
		stop = -1
	}
	ids, rangeErr := client.ZRevRange(REDIDX_RUN_CTIME, 0, stop).Result()
	if rangeErr != nil {
		log.Printf("ERROR RedisRunStore.ListRuns could not range index: %s", rangeErr)
		return nil, rangeErr
	}

	pipe := client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(ids))
	for i, idString := range ids {
		cmds[i] = pipe.HGetAll(keyForRunIdString(idString))
	}
	if len(ids) > 0 {
		_, execErr := pipe.Exec()
		if execErr != nil {
			log.Printf("ERROR RedisRunStore.ListRuns could not retrieve data: %s", execErr)
			return nil, execErr
		}
	}

	rtn := make([]*Run, 0, len(ids))
	for i, cmd := range cmds {
		content := cmd.Val()
		if len(content) == 0 {
			log.Printf("WARNING RedisRunStore.ListRuns index entry %s has no data behind it", ids[i])
			continue
		}
		run, decodeErr := RunFromMap(content)
		if decodeErr != nil {
			log.Printf("ERROR RedisRunStore.ListRuns could not decode data for %s: %s", ids[i], decodeErr)
			return nil, decodeErr
		}
		rtn = append(rtn, run)
	}
	return rtn, nil
}

func (s *RedisRunStore) DeleteRun(ctx context.Context, runId uuid.UUID) error {
	pipe := s.client.WithContext(ctx).TxPipeline()
	pipe.Del(keyForRunId(runId))
	pipe.ZRem(REDIDX_RUN_CTIME, runId.String())
	_, err := pipe.Exec()
	if err != nil {
		log.Printf("ERROR RedisRunStore.DeleteRun could not remove run %s: %s", runId, err)
	}
	return err
}

func (s *RedisRunStore) Ping(ctx context.Context) error {
	return s.client.WithContext(ctx).Ping().Err()
}
