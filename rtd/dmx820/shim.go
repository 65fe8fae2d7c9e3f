//go:build dmx820 && cgo

package dmx820

/*
#cgo CFLAGS: -I/usr/local/include/dmx820
#include <stdint.h>
#include "DMX820_Library.h"

extern void goDMADone(int channel, int result, int success);

// the library hands callbacks no user data, so each DMA channel gets its own
// trampoline that tells Go which channel finished

static int status_of(DMX820_Error e) {
	if (e == DMX820_ERROR_NO_ERROR) {
		return 0;
	}
	return (int)e;
}

static void dma_done_0(DMX820_DMA_Callback_Info info) {
	goDMADone(0, status_of(info.result), info.request_result == DMX820_INTRFC_DMA_RESULT_SUCCESS);
}

static void dma_done_1(DMX820_DMA_Callback_Info info) {
	goDMADone(1, status_of(info.result), info.request_result == DMX820_INTRFC_DMA_RESULT_SUCCESS);
}

// Go enum values to library values, -1 if the library has no equivalent

static int clock_source(int c) {
	switch (c) {
	case 0: return DMX820_FIFOCH_CLK_WRITE_PORT;
	case 1: return DMX820_FIFOCH_CLK_READ_PORT;
	case 2: return DMX820_CONF_CLOCKBUS_25_MHZ;
	case 3: return DMX820_CONF_CLOCKBUS_PGMCLK_0;
	}
	return -1;
}

static int dreq_source(int d) {
	switch (d) {
	case 0: return DMX820_FIFOCH_DREQ_WRITE;
	case 1: return DMX820_FIFOCH_DREQ_READ;
	}
	return -1;
}

static int input_data(int i) {
	switch (i) {
	case 0: return DMX820_FIFOCH_INPUT_PCI;
	case 2: return DMX820_FIFOCH_INPUT_PORT1;
	}
	return -1;
}

static int stdio_port(int p) {
	switch (p) {
	case 0: return DMX820_STDIO_PORT_0;
	case 1: return DMX820_STDIO_PORT_1;
	}
	return -1;
}

static int stdio_mode(int m) {
	switch (m) {
	case 0: return DMX820_STDIO_MODE_INPUT;
	case 2: return DMX820_STDIO_MODE_PER_OUT;
	}
	return -1;
}

static int dma_channel(int ch) {
	switch (ch) {
	case 0: return DMX820_DMA_CHANNEL_0;
	case 1: return DMX820_DMA_CHANNEL_1;
	}
	return -1;
}

static int rw_port(int p) {
	switch (p) {
	case 0: return DMX820_FIFO0_RW_PORT;
	case 1: return DMX820_FIFO1_RW_PORT;
	}
	return -1;
}

#define SHIM_INVALID 1

int shim_open(int index, DMX820_Board_Handle *handle) {
	return status_of(DMX820_General_Open_Board(index, handle));
}

int shim_close(DMX820_Board_Handle handle) {
	return status_of(DMX820_General_Close_Board(handle));
}

uint32_t shim_fifo_size(DMX820_Board_Handle handle) {
	return (uint32_t)handle->board_info.fifo_size;
}

int shim_fifo_enable(DMX820_Board_Handle handle, int fifo, int enable) {
	return status_of(DMX820_FifoCh_Set_Enable(handle, fifo, enable ? TRUE : FALSE));
}

int shim_fifo_config(DMX820_Board_Handle handle, int fifo, int in, int out, int dreq, int input) {
	DMX820_FifoCh_Config conf;
	int i = clock_source(in), o = clock_source(out), d = dreq_source(dreq), s = input_data(input);
	if (i < 0 || o < 0 || d < 0 || s < 0) {
		return SHIM_INVALID;
	}
	conf.in_clock = i;
	conf.out_clock = o;
	conf.DREQ_source = d;
	conf.input_data = s;
	return status_of(DMX820_FifoCh_Set_Config(handle, fifo, conf));
}

int shim_fifo_get_data(DMX820_Board_Handle handle, int fifo, uint16_t *out) {
	uint16 v = 0;
	DMX820_Error e = DMX820_FifoCh_Get_Data(handle, fifo, &v);
	*out = v;
	return status_of(e);
}

int shim_io_mode(DMX820_Board_Handle handle, int port, uint16_t mask, int mode) {
	int p = stdio_port(port), m = stdio_mode(mode);
	if (p < 0 || m < 0) {
		return SHIM_INVALID;
	}
	return status_of(DMX820_StdIO_Set_IO_Mode(handle, 0, p, mask, m));
}

int shim_periph_mode(DMX820_Board_Handle handle, int port, uint16_t mask, int periph) {
	int p = stdio_port(port);
	if (p < 0 || periph != 0) {
		return SHIM_INVALID;
	}
	return status_of(DMX820_StdIO_Set_Periph_Mode(handle, 0, p, mask, DMX820_STDIO_PERIPH_FIFO_0));
}

int shim_pgmclk_config(DMX820_Board_Handle handle, int clk, int master, uint32_t period) {
	DMX820_PgmClk_Config conf;
	int m = clock_source(master);
	if (m < 0) {
		return SHIM_INVALID;
	}
	conf.master = m;
	conf.start = DMX820_PGMCLK_CLOCK_IMMEDIATE;
	conf.stop = DMX820_PGMCLK_CLOCK_NO_STOP;
	conf.period = period;
	return status_of(DMX820_PgmClk_Set_Config(handle, clk, conf));
}

int shim_pgmclk_mode(DMX820_Board_Handle handle, int clk, int continuous) {
	return status_of(DMX820_PgmClk_Set_Mode(handle, clk,
		continuous ? DMX820_PGMCLK_MODE_CONT : DMX820_PGMCLK_MODE_DISABLED));
}

int shim_install_callback(DMX820_Board_Handle handle, int channel) {
	int ch = dma_channel(channel);
	if (ch < 0) {
		return SHIM_INVALID;
	}
	return status_of(DMX820_DMA_Install_Callback(handle, ch, channel == 0 ? dma_done_0 : dma_done_1));
}

int shim_remove_callback(DMX820_Board_Handle handle, int channel) {
	int ch = dma_channel(channel);
	if (ch < 0) {
		return SHIM_INVALID;
	}
	return status_of(DMX820_DMA_Remove_Callback(handle, ch));
}

int shim_request_transfer(DMX820_Board_Handle handle, int channel, int toBoard, int port, uint16_t *buf, uint32_t length, int notify) {
	int ch = dma_channel(channel), p = rw_port(port);
	if (ch < 0 || p < 0) {
		return SHIM_INVALID;
	}
	return status_of(DMX820_DMA_Request_Transfer(handle, ch,
		toBoard ? DMX820_DMA_OP_BUFFER_TO_BOARD : DMX820_DMA_OP_BOARD_TO_BUFFER,
		p, (void *)buf, length, notify ? TRUE : FALSE, 0, 0, FALSE, NULL));
}
*/
import "C"
