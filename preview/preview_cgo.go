//go:build cgo && !tinygo

package preview

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/glgl/v4.6-core/glgl"

	"github.com/ashgrove-games/svo/svobuf"
)

func logf(cfg Config, format string, args ...any) {
	if !cfg.Silent {
		fmt.Printf(format+"\n", args...)
	}
}

const defaultInvocations = 64

// placeholderShader reads one word per invocation and writes it back
// unchanged: this dispatch exists only to prove the buffer binds and
// round-trips through a real GL driver, matching spec.md's explicit
// "no rendering effects" scope for this package.
const placeholderShader = `#version 460
layout(local_size_x = %d) in;
layout(std430, binding = 0) buffer SVOWords {
	uint words[];
};
void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i < words.length()) {
		words[i] = words[i];
	}
}
` + "\x00"

func open(buf *svobuf.Buffer, cfg Config) (*Session, error) {
	invoc := cfg.WorkgroupInvocations
	if invoc <= 0 {
		invoc = defaultInvocations
	}
	_, terminate, err := glgl.InitWithCurrentWindow33(glgl.WindowConfig{
		Title:   "svo preview",
		Version: [2]int{4, 6},
		Width:   1,
		Height:  1,
	})
	if err != nil {
		return nil, err
	}
	release := terminate

	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Compute: fmt.Sprintf(placeholderShader, invoc),
	})
	if err != nil {
		release()
		return nil, err
	}
	prog.Bind()

	words := buf.RawWords()
	if len(words) == 0 {
		prog.Delete()
		release()
		return nil, fmt.Errorf("preview: empty buffer")
	}
	var ssbo uint32
	var p runtime.Pinner
	p.Pin(&ssbo)
	gl.GenBuffers(1, &ssbo)
	p.Unpin()
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, len(words)*4, unsafe.Pointer(&words[0]), gl.DYNAMIC_READ)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, ssbo)
	if err := glgl.Err(); err != nil {
		gl.DeleteBuffers(1, &ssbo)
		prog.Delete()
		release()
		return nil, err
	}

	nWorkX := (len(words) + invoc - 1) / invoc
	logf(cfg, "preview: dispatching %d workgroups over %d words", nWorkX, len(words))
	gl.DispatchCompute(uint32(nWorkX), 1, 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
	if err := glgl.Err(); err != nil {
		gl.DeleteBuffers(1, &ssbo)
		prog.Delete()
		release()
		return nil, err
	}

	return &Session{
		close: func() error {
			gl.DeleteBuffers(1, &ssbo)
			prog.Unbind()
			prog.Delete()
			release()
			return nil
		},
	}, nil
}
