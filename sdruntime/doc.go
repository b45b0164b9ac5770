// Package sdruntime runs ControlNet-guided SDXL stylization through an
// external diffusers worker.
//
// It follows atomic design principles:
//
//   - Atoms: Pure functions (Request.Validate, ValidatePrompt, ComposePrompt, RandomSeed, Classify)
//   - Molecules: Pipelines (lazy, once-only model loading) and RemoteRuntime (HTTP transport)
//   - Organism: Generator, which serializes whole generations behind one lock
//
// # Quick Start
//
//	rt := sdruntime.NewRemoteRuntime(cfg.RuntimeURL, cfg.Models, nil, cfg.Timeout)
//	pipelines := sdruntime.NewPipelines(rt.Load)
//	gen := sdruntime.NewGenerator(pipelines, sdruntime.GeneratorConfig{Device: sdruntime.DeviceCUDA}, logger)
//
//	req := sdruntime.DefaultRequest()
//	req.ImageData = pngBytes
//	req.Prompt = "a lighthouse at dusk"
//	req.Style = sdruntime.StyleRealistic
//
//	result, err := gen.Generate(ctx, req)
//
// The first Generate call loads the models; concurrent first calls share a
// single load. Generations never overlap: callers block on the generation
// lock until the previous one, including memory release, has finished.
//
// # Configuration
//
// Use LoadSDConfig() to load configuration from environment variables:
//
//	SD_RUNTIME_URL=http://127.0.0.1:7861
//	SD_DEVICE=auto                 # auto, cuda or cpu
//	SD_TIMEOUT_SECONDS=600
//	SD_READY_TIMEOUT_SECONDS=120
//	SD_BASE_MODEL=RunDiffusion/Juggernaut-XL-v8
//	SD_CONTROLNET_MODEL=xinsir/controlnet-canny-sdxl-1.0
//	SD_VAE_MODEL=madebyollin/sdxl-vae-fp16-fix
//	SD_REFINER_MODEL=stabilityai/stable-diffusion-xl-refiner-1.0
//	SD_OUTPUT_WIDTH=0              # 0 keeps the refiner's size
//	SD_OUTPUT_HEIGHT=0
//	STYLES_FILE=styles.yaml
//
// # Error Handling
//
// Use errors.Is() against the sentinels, or Classify() for the stage:
//
//	_, err := gen.Generate(ctx, req)
//	switch sdruntime.Classify(err) {
//	case sdruntime.KindInvalidParameter, sdruntime.KindInputConditioning:
//	    // caller's fault
//	case sdruntime.KindInitialization:
//	    // models could not be loaded
//	}
package sdruntime
