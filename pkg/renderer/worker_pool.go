package renderer

import (
	"runtime"
	"sync"
)

// TileTask represents a tile rendering task for the worker pool
type TileTask struct {
	Tile   Tile
	Frame  *TileRenderer
	Output *colorBuffer // Shared color buffer; tiles never overlap
	TaskID int
}

// TileResult contains the result from rendering a tile
type TileResult struct {
	TaskID int
	Stats  RenderStats
}

// WorkerPool manages parallel tile rendering
type WorkerPool struct {
	taskQueue   chan TileTask
	resultQueue chan TileResult
	numWorkers  int
	tileSize    int
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// NewWorkerPool creates a worker pool with the specified number of workers
func NewWorkerPool(numWorkers, tileSize int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if tileSize <= 0 {
		tileSize = 64
	}
	return &WorkerPool{
		taskQueue:   make(chan TileTask, numWorkers*2),
		resultQueue: make(chan TileResult, numWorkers*2),
		numWorkers:  numWorkers,
		tileSize:    tileSize,
	}
}

// Start begins all workers
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.run()
	}
}

// Stop gracefully shuts down all workers
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.taskQueue) // No more tasks
		wp.wg.Wait()        // Wait for workers to finish
		close(wp.resultQueue)
	})
}

// GetNumWorkers returns the number of workers in the pool
func (wp *WorkerPool) GetNumWorkers() int {
	return wp.numWorkers
}

// RenderFrame renders the viewport of frame into out using every worker.
// It must not be called concurrently.
func (wp *WorkerPool) RenderFrame(frame *frameState, out *colorBuffer) RenderStats {
	tr := NewTileRenderer(frame)
	tiles := NewTileGrid(frame.viewport.Width, frame.viewport.Height, wp.tileSize)

	go func() {
		for i, tile := range tiles {
			wp.taskQueue <- TileTask{Tile: tile, Frame: tr, Output: out, TaskID: i}
		}
	}()

	var stats RenderStats
	for range tiles {
		result := <-wp.resultQueue
		stats.merge(result.Stats)
	}
	return stats
}

// run is the main worker loop
func (wp *WorkerPool) run() {
	defer wp.wg.Done()

	for task := range wp.taskQueue {
		stats := task.Frame.RenderTileBounds(task.Tile, task.Output)
		wp.resultQueue <- TileResult{TaskID: task.TaskID, Stats: stats}
	}
}
